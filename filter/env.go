package filter

/*
Here the Envs used in the list filters are defined.
Once these structs are fixed, they should not be changed, otherwise saved
filter expressions may not compile any more (f.e. if properties are renamed).
*/

type ParticipantEnv struct {
	Channel      string
	Room         string
	CallerNumber string
	CallerName   string
	IsAdmin      bool
	IsMarked     bool
	IsMuted      bool
	IsTalking    bool
	IsOnHold     bool
	IsSelf       bool
	AudioLevel   float64
	HasLevel     bool

	AsInt   func(string) int64
	AsFloat func(string) float64
}

type EndpointEnv struct {
	Id          string
	DeviceState string
	Transport   string
	Online      bool
	Contacts    int
	Raw         map[string]string

	AsInt   func(string) int64
	AsFloat func(string) float64
}
