package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-pbx/config"
	"github.com/tcriess/lightspeed-pbx/control"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/layout"
	"github.com/tcriess/lightspeed-pbx/mirror"
	"github.com/tcriess/lightspeed-pbx/transport"
)

// A very simple CLI tool for inspecting and controlling conference rooms,
// endpoints and mailboxes via the manager interface.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
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

	timeout := time.Duration(globalConfig.ManagerConfig.TimeoutSeconds) * time.Second
	session, err := transport.Dial(globalConfig.ManagerConfig.Url, globalConfig.ManagerConfig.Username, globalConfig.ManagerConfig.Secret, timeout, globals.AppLogger)
	if err != nil {
		panic(err)
	}
	defer session.Close()

	mir := mirror.New(mirror.Options{SelfChannel: globalConfig.ManagerConfig.SelfChannel})
	mir.Attach(session)
	defer mir.Destroy(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err = mir.RefreshAll(ctx)
	cancel()
	if err != nil {
		globals.AppLogger.Error("could not refresh", "error", err)
	}

	authorizer := control.NewAuthorizer(mir, layout.NewState(), true)

	callCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), timeout)
	}
	printResult := func(res mirror.Result, err error) {
		if err != nil {
			globals.AppLogger.Error("action failed", "error", err)
			return
		}
		printJSON(res)
	}

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms, endpoints or mailboxes",
		Long:  `show prints the synchronized manager state.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all active conference rooms.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(mir.Rooms())
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints the room with the given id and its participants.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, ok := mir.Room(args[0])
			if !ok {
				globals.AppLogger.Error("no such room", "room", args[0])
				return
			}
			printJSON(room)
			printJSON(mir.Participants(args[0]))
		},
	}
	var cmdShowEndpoints = &cobra.Command{
		Use:   "endpoints",
		Short: "Show endpoints",
		Long:  `show endpoints lists all configured endpoints and their contacts.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(mir.Endpoints())
			printJSON(mir.Contacts())
		},
	}
	var cmdShowMailboxes = &cobra.Command{
		Use:   "mailboxes",
		Short: "Show mailboxes",
		Long:  `show mailboxes lists all voicemail boxes and their message counts.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(mir.Mailboxes())
		},
	}
	var cmdMute = &cobra.Command{
		Use:   "mute [channel]",
		Short: "Mute a participant",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.Mute(ctx, args[0]))
		},
	}
	var cmdUnmute = &cobra.Command{
		Use:   "unmute [channel]",
		Short: "Unmute a participant",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.Unmute(ctx, args[0]))
		},
	}
	var cmdKick = &cobra.Command{
		Use:   "kick [channel]",
		Short: "Kick a participant from its room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.Kick(ctx, args[0]))
		},
	}
	var cmdLock = &cobra.Command{
		Use:   "lock [room id]",
		Short: "Lock a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.Lock(ctx, args[0]))
		},
	}
	var cmdUnlock = &cobra.Command{
		Use:   "unlock [room id]",
		Short: "Unlock a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.Unlock(ctx, args[0]))
		},
	}
	var cmdRecord = &cobra.Command{
		Use:   "record [room id]",
		Short: "Start recording a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.StartRecording(ctx, args[0]))
		},
	}
	var cmdStopRecord = &cobra.Command{
		Use:   "stoprecord [room id]",
		Short: "Stop recording a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(authorizer.StopRecording(ctx, args[0]))
		},
	}
	var cmdQualify = &cobra.Command{
		Use:   "qualify [endpoint]",
		Short: "Qualify the contacts of an endpoint",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(mir.QualifyContact(ctx, args[0]))
		},
	}
	var cmdRegister = &cobra.Command{
		Use:   "register [endpoint]",
		Short: "Trigger an outbound registration",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := callCtx()
			defer cancel()
			printResult(mir.RegisterEndpoint(ctx, args[0]))
		},
	}
	var rootCmd = &cobra.Command{Use: "lightspeed-pbx-ctl"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdMute, cmdUnmute, cmdKick)
	rootCmd.AddCommand(cmdLock, cmdUnlock, cmdRecord, cmdStopRecord)
	rootCmd.AddCommand(cmdQualify, cmdRegister)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowEndpoints, cmdShowMailboxes)
	rootCmd.Execute()
}

func printJSON(v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal output", "error", err)
		return
	}
	fmt.Println(string(out))
}
