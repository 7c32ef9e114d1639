package delta

import (
	"strconv"

	accountdomain "github.com/coder92330/nylas-mail/internal/account/domain"
	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// inflate attaches current row attributes to log entries, loading each model
// in one batched query. Deltas keep the log's commit order. An entry whose
// row has since disappeared degrades to a tombstone.
func (f *Feed) inflate(entries []domain.Transaction) ([]Delta, error) {
	wanted := map[string][]string{}
	for _, entry := range entries {
		if entry.Event == domain.TransactionDelete {
			continue
		}
		wanted[entry.ModelName] = append(wanted[entry.ModelName], entry.ObjectID)
	}

	loaded := map[string]map[string]interface{}{}
	for model, ids := range wanted {
		objects, err := f.loadObjects(model, ids)
		if err != nil {
			return nil, err
		}
		loaded[model] = objects
	}

	deltas := make([]Delta, 0, len(entries))
	for _, entry := range entries {
		d := Delta{
			ID:       entry.ID,
			Cursor:   strconv.FormatUint(entry.ID, 10),
			Event:    entry.Event,
			Object:   entry.ModelName,
			ObjectID: entry.ObjectID,
		}
		if objects, ok := loaded[entry.ModelName]; ok {
			d.Attributes = objects[entry.ObjectID]
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func (f *Feed) loadObjects(model string, ids []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(ids))
	switch model {
	case "thread":
		var rows []domain.Thread
		if err := f.db.Preload("Mailboxes").Preload("Labels").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "message":
		var rows []domain.Message
		if err := f.db.Preload("Labels").Preload("Files").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "contact":
		var rows []domain.Contact
		if err := f.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "file":
		var rows []domain.File
		if err := f.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "mailbox":
		var rows []domain.Mailbox
		if err := f.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "label":
		var rows []domain.Label
		if err := f.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	case "account":
		var rows []accountdomain.Account
		if err := f.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ID] = rows[i]
		}
	default:
		f.logger.WithField("model", model).Warn("Unknown model in change log, emitting tombstones")
	}
	return out, nil
}
