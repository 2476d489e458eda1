// Command cnw-device runs a device-limited session from a terminal and
// manages the devices of an account.
//
// Usage:
//
//	cnw-device [-config file] <command> [args]
//
// Commands:
//
//	session <user-id>                             start a session and keep it alive until interrupted
//	devices <user-id>                             list the account's devices
//	check <user-id>                               ask whether this device may start a session
//	remove <user-id> <device-id> [session-token]  remove a device
//	rename <user-id> <device-id> <name>           rename a device
//	device-id                                     print this device's id
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice"
	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "config file (YAML, JSON, TOML or .env); environment overrides it")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	loadEnvFile()

	cfg, err := cnwdevice.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	durable, release, err := openDurableStore(ctx, cfg.Storage)
	if err != nil {
		fatal("Failed to open storage", err)
	}
	defer release()

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent(version)
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: cnwdevice.NewRegistryClient(cfg.RegistryURL, cfg.ClientOptions(logger)...),
		durable:  durable,
		probes:   cnwdevice.HostProbes(cfg.UserAgent),
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := a.run(ctx, cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		release()
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

type app struct {
	cfg      *cnwdevice.Config
	logger   *slog.Logger
	registry *cnwdevice.RegistryClient
	durable  clientstore.Store
	probes   cnwdevice.Probes
}

// commandArgs names the positional arguments each command takes. Arguments
// in brackets are optional.
var commandArgs = map[string][]string{
	"session":   {"user-id"},
	"devices":   {"user-id"},
	"check":     {"user-id"},
	"remove":    {"user-id", "device-id", "[session-token]"},
	"rename":    {"user-id", "device-id", "name"},
	"device-id": {},
}

// parseArgs checks args against cmd's positional arguments. Missing
// optional arguments come back as "".
func parseArgs(cmd string, args []string) ([]string, error) {
	names, ok := commandArgs[cmd]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
	required := 0
	for _, n := range names {
		if !strings.HasPrefix(n, "[") {
			required++
		}
	}
	if len(args) < required || len(args) > len(names) {
		return nil, fmt.Errorf("usage: cnw-device %s %s", cmd, strings.Join(names, " "))
	}
	out := make([]string, len(names))
	copy(out, args)
	return out, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	params, err := parseArgs(cmd, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return errUsage
	}

	switch cmd {
	case "session":
		return a.session(ctx, params[0])
	case "devices":
		return a.devices(ctx, params[0])
	case "check":
		return a.check(ctx, params[0])
	case "remove":
		userID, deviceID, token := params[0], params[1], params[2]
		if token == "" {
			token, _ = a.durable.Get(ctx, cnwdevice.KeySessionToken)
		}
		if err := a.registry.RemoveDevice(ctx, userID, deviceID, token); err != nil {
			return err
		}
		fmt.Printf("Removed %s.\n", deviceID)
		return nil
	case "rename":
		userID, deviceID, name := params[0], params[1], params[2]
		if err := a.registry.UpdateDeviceName(ctx, userID, deviceID, name); err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q.\n", deviceID, name)
		return nil
	default:
		fmt.Println(a.identifier().GetOrCreateDeviceID(ctx))
		return nil
	}
}

func (a *app) identifier() *cnwdevice.DeviceIdentifier {
	return cnwdevice.NewDeviceIdentifier(a.durable, a.probes, a.logger)
}

// session runs one device session until it is revoked or the process is
// interrupted, in which case it logs out.
func (a *app) session(ctx context.Context, userID string) error {
	user, err := a.registry.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if user.AccessExpired(time.Now()) {
		a.logger.Warn("Access period has ended", "userID", userID, "expiresAt", user.AccessExpiresAt)
	}

	host := newConsoleHost(os.Stdout)
	hooks := cnwdevice.NewTabHooks()
	ctrl, err := cnwdevice.NewController(a.registry, cnwdevice.Env{
		Durable:   a.durable,
		Tab:       clientstore.NewMemoryStore(),
		Navigator: host,
		Notifier:  host,
		Users:     host,
		Lifecycle: hooks,
		Probes:    a.probes,
		Screen:    a.cfg.Screen,
		UserAgent: a.cfg.UserAgent,
	}, a.cfg.ControllerOptions(a.logger)...)
	if err != nil {
		return err
	}

	if err := ctrl.Start(ctx, *user); err != nil {
		return err
	}
	session, _ := ctrl.Session()
	fmt.Printf("Session active on %s (%s). Press Ctrl+C to sign out.\n", session.DeviceName, session.DeviceID)

	select {
	case reason := <-host.redirect:
		return fmt.Errorf("%w: %s", cnwdevice.ErrSessionTerminated, reason)
	case <-ctrl.Done():
		return fmt.Errorf("%w: %s", cnwdevice.ErrSessionTerminated, ctrl.Reason())
	case <-ctx.Done():
	}

	hooks.Close()
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Logout(shutdown); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}

func (a *app) devices(ctx context.Context, userID string) error {
	records, err := a.registry.ListDevices(ctx, userID)
	if err != nil {
		return err
	}
	printDevices(os.Stdout, cnwdevice.GroupDevices(records, a.identifier().GetOrCreateDeviceID(ctx)))
	return nil
}

func (a *app) check(ctx context.Context, userID string) error {
	deviceID := a.identifier().GetOrCreateDeviceID(ctx)
	limit, err := a.registry.CheckAccessLimit(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if err := cnwdevice.CheckAccess(*limit); err != nil {
		return err
	}
	fmt.Printf("Access granted for %s: %s, %d remaining.\n", deviceID, limit.Summary(), limit.Remaining())
	return nil
}

// loadEnvFile loads .env next to the executable, or in the working directory.
func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		if candidate := filepath.Join(filepath.Dir(execPath), ".env"); fileExists(candidate) {
			envFile = candidate
		}
	}
	if !fileExists(envFile) {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load .env file:", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: cnw-device [-config file] <command> [args]

Commands:
  session <user-id>                             start a session and keep it alive
  devices <user-id>                             list the account's devices
  check <user-id>                               ask whether this device may start a session
  remove <user-id> <device-id> [session-token]  remove a device
  rename <user-id> <device-id> <name>           rename a device
  device-id                                     print this device's id

Configuration comes from CNW_DEVICE_* environment variables or a .env file.
`)
}
