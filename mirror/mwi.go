package mirror

import (
	"context"

	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

// Voicemail message-waiting reconciliation.

func (m *Mirror) applyMessageWaiting(payload map[string]string) {
	rec, err := types.DecodeMailboxRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed message waiting event", "error", err)
		return
	}
	m.mailboxes.Upsert(rec.Mailbox, func(b types.Mailbox, found bool) types.Mailbox {
		if !found {
			b.Id = rec.Mailbox
		}
		b.NewCount = rec.New
		b.OldCount = rec.Old
		return b
	})
}

// RefreshMailboxes replaces the mailbox store with a fresh unscoped snapshot.
func (m *Mirror) RefreshMailboxes(ctx context.Context) error {
	return m.runListAction(ctx, scopeMailboxes, types.ActionMailboxStatusSummary, nil, func(items []transport.ListItem) {
		batch := make([]types.Mailbox, 0, len(items))
		for _, item := range items {
			if item.Name != types.EventMailboxStatus {
				continue
			}
			rec, err := types.DecodeMailboxRecord(item.Fields)
			if err != nil {
				m.log.Warn("dropped malformed mailbox record", "error", err)
				continue
			}
			batch = append(batch, types.Mailbox{Id: rec.Mailbox, NewCount: rec.New, OldCount: rec.Old})
		}
		m.mailboxes.Replace(batch)
	})
}
