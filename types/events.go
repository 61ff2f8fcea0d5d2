package types

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Unsolicited events pushed by the manager.
const (
	EventConfbridgeJoin       = "ConfbridgeJoin"
	EventConfbridgeLeave      = "ConfbridgeLeave"
	EventConfbridgeTalking    = "ConfbridgeTalking"
	EventConfbridgeMute       = "ConfbridgeMute"
	EventConfbridgeUnmute     = "ConfbridgeUnmute"
	EventConfbridgeLock       = "ConfbridgeLock"
	EventConfbridgeUnlock     = "ConfbridgeUnlock"
	EventConfbridgeRecord     = "ConfbridgeRecord"
	EventConfbridgeStopRecord = "ConfbridgeStopRecord"
	EventHold                 = "Hold"
	EventUnhold               = "Unhold"
	EventDeviceStateChange    = "DeviceStateChange"
	EventContactStatus        = "ContactStatus"
	EventMessageWaiting       = "MessageWaiting"
)

// List-item events bundled with the terminal response of a list action.
const (
	EventConfbridgeListRooms = "ConfbridgeListRooms"
	EventConfbridgeList      = "ConfbridgeList"
	EventEndpointList        = "EndpointList"
	EventContactList         = "ContactList"
	EventMailboxStatus       = "MailboxStatus"
)

// Actions sent to the manager.
const (
	ActionLogin                = "Login"
	ActionConfbridgeListRooms  = "ConfbridgeListRooms"
	ActionConfbridgeList       = "ConfbridgeList"
	ActionConfbridgeMute       = "ConfbridgeMute"
	ActionConfbridgeUnmute     = "ConfbridgeUnmute"
	ActionConfbridgeKick       = "ConfbridgeKick"
	ActionConfbridgeLock       = "ConfbridgeLock"
	ActionConfbridgeUnlock     = "ConfbridgeUnlock"
	ActionConfbridgeStartRec   = "ConfbridgeStartRecord"
	ActionConfbridgeStopRec    = "ConfbridgeStopRecord"
	ActionConfbridgeSetVolume  = "ConfbridgeSetVolume"
	ActionPJSIPShowEndpoints   = "PJSIPShowEndpoints"
	ActionPJSIPShowContacts    = "PJSIPShowContacts"
	ActionPJSIPQualify         = "PJSIPQualify"
	ActionPJSIPRegister        = "PJSIPRegister"
	ActionMailboxStatusSummary = "MailboxStatusSummary"
)

// The manager payloads are flat string maps. Each event name has an explicit
// decoder into a fixed-shape record here at the boundary, the raw map is
// never passed further down. Decoding is weak (mapstructure), so numeric and
// boolean fields arrive as strings and are converted in one place.

type RoomRecord struct {
	Conference string `mapstructure:"Conference"`
	Parties    int    `mapstructure:"Parties"`
	Marked     int    `mapstructure:"Marked"`
	Locked     bool   `mapstructure:"Locked"`
	Muted      bool   `mapstructure:"Muted"`
	Recording  bool   `mapstructure:"Recording"`
}

type ParticipantRecord struct {
	Conference   string   `mapstructure:"Conference"`
	Channel      string   `mapstructure:"Channel"`
	CallerIDNum  string   `mapstructure:"CallerIDNum"`
	CallerIDName string   `mapstructure:"CallerIDName"`
	Admin        bool     `mapstructure:"Admin"`
	Marked       bool     `mapstructure:"Marked"`
	Muted        bool     `mapstructure:"Muted"`
	Talking      bool     `mapstructure:"TalkingStatus"`
	Hold         bool     `mapstructure:"Hold"`
	AudioLevel   *float64 `mapstructure:"AudioLevel"`
}

type EndpointRecord struct {
	ObjectName  string `mapstructure:"ObjectName"`
	DeviceState string `mapstructure:"DeviceState"`
	Transport   string `mapstructure:"Transport"`
}

type ContactRecord struct {
	Uri          string  `mapstructure:"Uri"`
	EndpointName string  `mapstructure:"EndpointName"`
	Status       string  `mapstructure:"Status"`
	RoundtripMs  float64 `mapstructure:"RoundtripMsec"`
	Expiration   int64   `mapstructure:"ExpirationTime"` // unix seconds
}

type MailboxRecord struct {
	Mailbox string `mapstructure:"Mailbox"`
	New     int    `mapstructure:"NewMessages"`
	Old     int    `mapstructure:"OldMessages"`
}

func decodeRecord(payload map[string]string, out interface{}) error {
	in := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		in[k] = v
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       flagToBoolHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}

// flagToBoolHookFunc maps the manager's flag vocabulary (Yes/No, on/off) onto
// bool fields. Everything else falls through to the weak conversion, which
// already handles 1/0 and true/false.
func flagToBoolHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
			return data, nil
		}
		switch strings.ToLower(data.(string)) {
		case "yes", "on":
			return true, nil
		case "no", "off":
			return false, nil
		}
		return data, nil
	}
}

func DecodeRoomRecord(payload map[string]string) (*RoomRecord, error) {
	rec := RoomRecord{}
	if err := decodeRecord(payload, &rec); err != nil {
		return nil, err
	}
	if rec.Conference == "" {
		return nil, fmt.Errorf("room record without Conference field")
	}
	return &rec, nil
}

func DecodeParticipantRecord(payload map[string]string) (*ParticipantRecord, error) {
	rec := ParticipantRecord{}
	if err := decodeRecord(payload, &rec); err != nil {
		return nil, err
	}
	if rec.Channel == "" {
		return nil, fmt.Errorf("participant record without Channel field")
	}
	return &rec, nil
}

func DecodeEndpointRecord(payload map[string]string) (*EndpointRecord, error) {
	rec := EndpointRecord{}
	if err := decodeRecord(payload, &rec); err != nil {
		return nil, err
	}
	if rec.ObjectName == "" {
		return nil, fmt.Errorf("endpoint record without ObjectName field")
	}
	return &rec, nil
}

func DecodeContactRecord(payload map[string]string) (*ContactRecord, error) {
	rec := ContactRecord{}
	if err := decodeRecord(payload, &rec); err != nil {
		return nil, err
	}
	if rec.Uri == "" {
		return nil, fmt.Errorf("contact record without Uri field")
	}
	return &rec, nil
}

func DecodeMailboxRecord(payload map[string]string) (*MailboxRecord, error) {
	rec := MailboxRecord{}
	if err := decodeRecord(payload, &rec); err != nil {
		return nil, err
	}
	if rec.Mailbox == "" {
		return nil, fmt.Errorf("mailbox record without Mailbox field")
	}
	return &rec, nil
}
