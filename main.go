package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/leeineian/jukebox/home"
	_ "github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const pidFile = ".bot.pid"

func main() {
	// LogFatal panics so deferred cleanup still runs.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}

	silent := flag.Bool("silent", cfg.Silent, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force clear guild commands (scan all guilds)")
	flag.Parse()

	sys.InitLogger(*silent, true)

	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal("Failed to initialize database: %v", err)
	}
	defer sys.CloseDatabase()

	botName := sys.GetProjectName()
	if name, _, err := sys.GetBotUsername(context.Background(), cfg.Token); err == nil {
		botName = name
	} else {
		sys.LogError("Failed to get bot username: %v", err)
	}
	sys.LogInfo(sys.MsgBotStarting, botName)

	f := lockPIDFile()
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(pidFile)
	}()

	if err := run(cfg, *silent, *skipReg, *clearAll); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

// lockPIDFile takes an exclusive lock on the PID file, terminating any
// instance that still holds it, and writes our PID.
func lockPIDFile() *os.File {
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal("Failed to open PID file: %v", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			sys.LogFatal("Failed to lock PID file: %v", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil {
			_ = f.Close()
			<-ticker.C
			f, _ = os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
			continue
		}
		if oldPid == os.Getpid() {
			break
		}

		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			<-ticker.C
			continue
		}

		sys.LogInfo(sys.MsgBotKillingOld, oldPid)
		if err := process.Signal(syscall.SIGTERM); err != nil {
			sys.LogWarn(sys.MsgBotKillFail, err)
		}
		if !waitExit(process, ticker, 5*time.Second) {
			sys.LogWarn("Old process %d is stubborn. Sending SIGKILL...", oldPid)
			_ = process.Signal(syscall.SIGKILL)
			if !waitExit(process, ticker, 2*time.Second) {
				sys.LogWarn("Process %d still exists after SIGKILL", oldPid)
			}
		}
		sys.LogInfo(sys.MsgBotOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
		sys.LogWarn(sys.MsgBotPIDWriteFail, err)
	}
	_ = f.Sync()
	return f
}

// waitExit polls until process is gone or timeout passes.
func waitExit(process *os.Process, ticker *time.Ticker, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if err := process.Signal(syscall.Signal(0)); err != nil {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func run(cfg *sys.Config, silent, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	sys.SetAppContext(ctx)

	client, err := sys.CreateClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo("Skipping command registration as requested.")
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	// Daemon shutdown hooks stop every session and leave voice before the
	// gateway closes.
	sys.LogInfo("Shutting down all daemons...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sys.ShutdownDaemons(shutdownCtx)

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return nil
}
