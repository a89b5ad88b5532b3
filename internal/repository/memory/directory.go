package memory

import (
	"context"
	"sync"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

var _ notification.RecipientResolver = (*Directory)(nil)

// Directory resolves recipients registered with Put.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]notification.Recipient
}

func NewDirectory() *Directory {
	return &Directory{byID: make(map[string]notification.Recipient)}
}

func (d *Directory) Put(r notification.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[r.SubjectID] = r
}

func (d *Directory) Delete(subjectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byID, subjectID)
}

func (d *Directory) Resolve(_ context.Context, subjectID string) (*notification.Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.byID[subjectID]
	if !ok {
		return nil, notification.ErrRecipientNotFound
	}
	return &r, nil
}
