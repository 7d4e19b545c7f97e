package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"AngelLink/internal/linking"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/remote"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Accounts is the part of the account store the scheduler drives.
type Accounts interface {
	Current() (model.Snapshot, bool)
	RefreshProfile(ctx context.Context) (model.Snapshot, error)
	RefreshPlan(ctx context.Context) (model.PlanInfo, error)
	RefreshFunds(ctx context.Context) (decimal.Decimal, error)
	SetMarginPercent(ctx context.Context, pct int) error
	SetClientID(ctx context.Context, clientID string) error
}

// Linker starts linking attempts and resumes pending ones.
type Linker interface {
	StartLinking(ctx context.Context) error
	ConsumeCarryover(ctx context.Context) (bool, error)
}

// Engine is the engine control.
type Engine interface {
	State() model.EngineState
	Toggle(ctx context.Context) (model.Guidance, error)
}

// Session holds the desk credential.
type Session interface {
	SetToken(token string) error
	ClearToken() error
}

// Scheduler runs the periodic refreshes and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Accounts Accounts
	Linker   Linker
	Engine   Engine
	Session  Session
	Ctx      context.Context

	// Timeout bounds one task or command.
	Timeout time.Duration
}

func NewScheduler(ctx context.Context, accounts Accounts, linker Linker, eng Engine, sess Session) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Accounts: accounts,
		Linker:   linker,
		Engine:   eng,
		Session:  sess,
		Ctx:      ctx,
		Timeout:  30 * time.Second,
	}
}

// RegisterAll registers the profile and funds refresh tasks.
func (s *Scheduler) RegisterAll(profileCron, fundsCron string) error {
	if _, err := s.Cron.AddFunc(profileCron, s.profileTask); err != nil {
		return fmt.Errorf("register profile task: %w", err)
	}
	if _, err := s.Cron.AddFunc(fundsCron, s.fundsTask); err != nil {
		return fmt.Errorf("register funds task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

func (s *Scheduler) profileTask() {
	ctx, cancel := s.taskContext()
	defer cancel()
	if _, err := s.Accounts.RefreshProfile(ctx); err != nil {
		if !errors.Is(err, remote.ErrSessionExpired) {
			log.Printf("[ERROR] scheduled profile refresh: %v", err)
		}
		return
	}
	if _, err := s.Accounts.RefreshPlan(ctx); err != nil && !errors.Is(err, remote.ErrSessionExpired) {
		log.Printf("[WARN] scheduled plan refresh: %v", err)
	}
}

// fundsTask only runs while a broker is connected.
func (s *Scheduler) fundsTask() {
	snap, ok := s.Accounts.Current()
	if !ok || !snap.BrokerConnected() {
		return
	}
	ctx, cancel := s.taskContext()
	defer cancel()
	if _, err := s.Accounts.RefreshFunds(ctx); err != nil && !errors.Is(err, remote.ErrSessionExpired) {
		log.Printf("[WARN] scheduled funds refresh: %v", err)
	}
}

func (s *Scheduler) taskContext() (context.Context, context.CancelFunc) {
	parent := s.Ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.Timeout)
}

const helpText = "Available commands:\n" +
	"• /status\n" +
	"• /link\n" +
	"• /engine\n" +
	"• /funds\n" +
	"• /margin &lt;percent&gt;\n" +
	"• /clientid &lt;id&gt;\n" +
	"• /login &lt;token&gt;\n" +
	"• /logout"

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := s.taskContext()
	defer cancel()

	switch verb {
	case "/status":
		snap, ok := s.Accounts.Current()
		if !ok {
			var err error
			if snap, err = s.Accounts.RefreshProfile(ctx); err != nil {
				return reply(err, "Profile is not loaded yet.")
			}
		}
		return notifier.FormatStatus(snap, s.Engine.State())

	case "/link":
		if err := s.Linker.StartLinking(ctx); err != nil {
			return reply(err, "Could not start linking.")
		}
		return "Angel login opened on the dashboard. Finish it there within two minutes."

	case "/engine":
		guidance, err := s.Engine.Toggle(ctx)
		if err != nil {
			return reply(err, "Engine toggle failed.")
		}
		if guidance != model.GuidanceEligible {
			return notifier.FormatGuidance(guidance)
		}
		if s.Engine.State().Enabled {
			return "Engine is now ON."
		}
		return "Engine is now OFF."

	case "/funds":
		available, err := s.Accounts.RefreshFunds(ctx)
		if err != nil {
			return reply(err, "Could not load funds.")
		}
		return "Available margin: " + notifier.FormatFunds(available)

	case "/margin":
		if len(args) != 1 {
			return "Usage: /margin &lt;percent&gt;"
		}
		pct, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
		if err != nil {
			return "Margin must be a whole number between 0 and 100."
		}
		if err := s.Accounts.SetMarginPercent(ctx, pct); err != nil {
			return reply(err, "Could not update the margin setting.")
		}
		return fmt.Sprintf("Allowed margin set to %d%%.", pct)

	case "/clientid":
		if len(args) != 1 {
			return "Usage: /clientid &lt;id&gt;"
		}
		if err := s.Accounts.SetClientID(ctx, args[0]); err != nil {
			return reply(err, "Could not save the client ID.")
		}
		return "Client ID saved."

	case "/login":
		if len(args) != 1 {
			return "Usage: /login &lt;token&gt;"
		}
		return s.login(ctx, args[0])

	case "/logout":
		if err := s.Session.ClearToken(); err != nil {
			log.Printf("[ERROR] logout: %v", err)
			return "Could not clear the session."
		}
		return "Signed out."

	default:
		return helpText
	}
}

// login stores a fresh credential, resumes any pending link and reloads the
// profile.
func (s *Scheduler) login(ctx context.Context, token string) string {
	if err := s.Session.SetToken(token); err != nil {
		log.Printf("[ERROR] store token: %v", err)
		return "Could not store the session."
	}
	if _, err := s.Linker.ConsumeCarryover(ctx); err != nil {
		log.Printf("[WARN] resume pending link: %v", err)
	}
	if _, err := s.Accounts.RefreshProfile(ctx); err != nil {
		return reply(err, "Signed in, but the profile could not be loaded.")
	}
	return "Signed in."
}

func reply(err error, fallback string) string {
	switch {
	case errors.Is(err, remote.ErrSessionExpired):
		return "Session expired. Send /login &lt;token&gt; to sign in again."
	case errors.Is(err, linking.ErrPopupBlocked):
		return "No dashboard is open to show the Angel login. Open the desk and try again."
	default:
		return remote.UserMessage(err, fallback)
	}
}
