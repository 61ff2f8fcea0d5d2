package types

import "encoding/json"

// Mailbox is a voicemail box message-waiting indication. The indicator is
// derived from NewCount, it is not stored on its own so the two can never
// drift apart.
type Mailbox struct {
	Id       string `gorm:"primaryKey"`
	NewCount int
	OldCount int
}

func (m Mailbox) Key() string { return m.Id }

func (m Mailbox) IndicatorOn() bool { return m.NewCount > 0 }

func (m Mailbox) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Id          string `json:"id"`
		NewCount    int    `json:"new_count"`
		OldCount    int    `json:"old_count"`
		IndicatorOn bool   `json:"indicator_on"`
	}{m.Id, m.NewCount, m.OldCount, m.IndicatorOn()})
}

func (m *Mailbox) UnmarshalJSON(data []byte) error {
	aux := struct {
		Id       string `json:"id"`
		NewCount int    `json:"new_count"`
		OldCount int    `json:"old_count"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Id = aux.Id
	m.NewCount = aux.NewCount
	m.OldCount = aux.OldCount
	return nil
}
