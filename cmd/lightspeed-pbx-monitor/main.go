package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-pbx/config"
	"github.com/tcriess/lightspeed-pbx/control"
	"github.com/tcriess/lightspeed-pbx/filter"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/layout"
	"github.com/tcriess/lightspeed-pbx/mirror"
	"github.com/tcriess/lightspeed-pbx/persistence"
	"github.com/tcriess/lightspeed-pbx/speaker"
	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8080", "http service address (including port)")
	moderator  = pflag.Bool("moderator", false, "allow moderator-only actions (kick)")

	globalConfig *config.Config
	persister    persistence.Persister
	mir          *mirror.Mirror
	layoutState  *layout.State
	authorizer   *control.Authorizer

	detectors     map[string]*speaker.Detector = make(map[string]*speaker.Detector)
	detectorsLock sync.Mutex
)

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	var err error
	globalConfig, err = config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if u, _ := flagSet.GetString("manager-url"); u != "" {
		globalConfig.ManagerConfig.Url = u
	}
	if u, _ := flagSet.GetString("manager-username"); u != "" {
		globalConfig.ManagerConfig.Username = u
	}
	if s, _ := flagSet.GetString("manager-secret"); s != "" {
		globalConfig.ManagerConfig.Secret = s
	}
	if globalConfig.ManagerConfig.Url == "" {
		panic("no manager url configured")
	}

	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err = persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}

	mir = mirror.New(mirror.Options{
		SelfChannel:      globalConfig.ManagerConfig.SelfChannel,
		RefreshOnConnect: globalConfig.RefreshConfig.OnConnect,
	})

	go func() {
		<-c
		mir.Destroy(false)
		if persister != nil {
			persister.Close()
		}
		log.Fatal("interrupted!")
	}()

	// seed the mirror with the last-known-good state, so there is something to
	// show before the first snapshot arrives
	if persister != nil {
		rooms, err := persister.GetRooms()
		if err != nil {
			globals.AppLogger.Error("could not get cached rooms", "error", err)
		} else {
			seed := make([]types.Room, 0, len(rooms))
			for _, room := range rooms {
				seed = append(seed, *room)
			}
			mir.SeedRooms(seed)
		}
		mailboxes, err := persister.GetMailboxes()
		if err != nil {
			globals.AppLogger.Error("could not get cached mailboxes", "error", err)
		} else {
			seed := make([]types.Mailbox, 0, len(mailboxes))
			for _, mailbox := range mailboxes {
				seed = append(seed, *mailbox)
			}
			mir.SeedMailboxes(seed)
		}
	}

	layoutState = layout.NewState()
	authorizer = control.NewAuthorizer(mir, layoutState, *moderator)

	removeListener := mir.AddParticipantListener(onParticipantsChanged)
	defer removeListener()

	if globalConfig.RefreshConfig.CronSpec != "" {
		cr := cron.New()
		_, err := cr.AddFunc(globalConfig.RefreshConfig.CronSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := mir.RefreshAll(ctx); err != nil {
				globals.AppLogger.Warn("scheduled refresh failed", "error", err)
			}
			snapshot()
		})
		if err != nil {
			panic(err)
		}
		cr.Start()
		defer cr.Stop()
	}

	go manageSession()

	setupRoutes()
	err = http.ListenAndServe(*addr, nil)
	globals.AppLogger.Error("stopped listening", "error", err)
}

// manageSession dials the manager and re-dials whenever the session is lost.
// The mirror keeps serving the stale state in between.
func manageSession() {
	timeout := time.Duration(globalConfig.ManagerConfig.TimeoutSeconds) * time.Second
	for {
		session, err := transport.Dial(globalConfig.ManagerConfig.Url, globalConfig.ManagerConfig.Username, globalConfig.ManagerConfig.Secret, timeout, globals.AppLogger)
		if err != nil {
			globals.AppLogger.Error("could not connect to manager", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		lost := make(chan struct{})
		var once sync.Once
		session.SubscribeState(func(connected bool) {
			if !connected {
				once.Do(func() { close(lost) })
			}
		})
		mir.Attach(session)
		globals.AppLogger.Info("manager session established", "url", globalConfig.ManagerConfig.Url)
		<-lost
		globals.AppLogger.Warn("manager session lost, reconnecting")
		session.Close()
		time.Sleep(5 * time.Second)
	}
}

func onParticipantsChanged(room string) {
	detectorFor(room).Recompute(mir.Participants(room))
}

func detectorFor(room string) *speaker.Detector {
	detectorsLock.Lock()
	defer detectorsLock.Unlock()
	if d, ok := detectors[room]; ok {
		return d
	}
	d := speaker.NewDetector(speaker.Options{
		Room:        room,
		Threshold:   globalConfig.SpeakerConfig.Threshold,
		Debounce:    time.Duration(globalConfig.SpeakerConfig.DebounceMs) * time.Millisecond,
		HistorySize: globalConfig.SpeakerConfig.HistorySize,
		OnCommit:    persistSpeakerEntry,
	})
	detectors[room] = d
	return d
}

func persistSpeakerEntry(entry types.SpeakerHistoryEntry) {
	if persister == nil {
		return
	}
	err := persister.StoreSpeakerHistory([]*types.SpeakerHistoryEntry{&entry})
	if err != nil {
		globals.AppLogger.Error("could not store speaker history entry", "error", err)
	}
}

// snapshot writes the current rooms and mailboxes to the persister.
func snapshot() {
	if persister == nil {
		return
	}
	for _, room := range mir.Rooms() {
		if err := persister.StoreRoom(room); err != nil {
			globals.AppLogger.Error("could not store room", "error", err)
		}
	}
	for _, mailbox := range mir.Mailboxes() {
		if err := persister.StoreMailbox(mailbox); err != nil {
			globals.AppLogger.Error("could not store mailbox", "error", err)
		}
	}
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/rooms", roomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/participants", participantsHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/speaker", speakerHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/layout", layoutHandler).Methods(http.MethodGet)
	router.HandleFunc("/endpoints", endpointsHandler).Methods(http.MethodGet)
	router.HandleFunc("/contacts", contactsHandler).Methods(http.MethodGet)
	router.HandleFunc("/mailboxes", mailboxesHandler).Methods(http.MethodGet)
	router.HandleFunc("/status", statusHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func roomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, mir.Rooms())
}

func participantsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	participants := mir.Participants(vars["room"])
	if expression := r.URL.Query().Get("filter"); expression != "" {
		var err error
		participants, err = filter.Participants(participants, expression)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, participants)
}

func speakerHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d := detectorFor(vars["room"])
	resp := struct {
		ActiveSpeaker  string                      `json:"active_speaker"`
		ActiveSpeakers []types.Participant         `json:"active_speakers"`
		History        []types.SpeakerHistoryEntry `json:"history"`
	}{
		ActiveSpeakers: d.ActiveSpeakers(),
		History:        d.History(),
	}
	if p, ok := d.ActiveSpeaker(); ok {
		resp.ActiveSpeaker = p.Channel
	}
	writeJSON(w, resp)
}

func layoutHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room := vars["room"]
	vals := r.URL.Query()
	width, _ := strconv.Atoi(vals.Get("width"))
	height, _ := strconv.Atoi(vals.Get("height"))
	count := len(mir.Participants(room))
	if c := vals.Get("count"); c != "" {
		count, _ = strconv.Atoi(c)
	}
	gap := globalConfig.LayoutConfig.Gap
	if gap <= 0 {
		gap = layout.DefaultGap
	}
	active := ""
	if p, ok := detectorFor(room).ActiveSpeaker(); ok {
		active = p.Channel
	}
	resp := struct {
		Mode     layout.Mode     `json:"mode"`
		Focused  string          `json:"focused"`
		Geometry layout.Geometry `json:"geometry"`
	}{
		Mode:     layoutState.Mode(),
		Focused:  layoutState.Focused(active),
		Geometry: layout.Grid(count, layout.Size{Width: width, Height: height}, gap, globalConfig.LayoutConfig.MaxColumns, globalConfig.LayoutConfig.MaxRows),
	}
	writeJSON(w, resp)
}

func endpointsHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := mir.Endpoints()
	if expression := r.URL.Query().Get("filter"); expression != "" {
		var err error
		endpoints, err = filter.Endpoints(endpoints, expression)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, endpoints)
}

func contactsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, mir.Contacts())
}

func mailboxesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, mir.Mailboxes())
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Live      bool   `json:"live"`
		LastError string `json:"last_error,omitempty"`
		Moderator bool   `json:"moderator"`
	}{
		Live:      mir.Live(),
		LastError: mir.LastError(),
		Moderator: authorizer.IsModerator(),
	}
	writeJSON(w, resp)
}
