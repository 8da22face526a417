package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Robertja98/simple-auth/internal/audit"
	"github.com/Robertja98/simple-auth/internal/backup"
	"github.com/Robertja98/simple-auth/internal/config"
	"github.com/Robertja98/simple-auth/internal/maintenance"
	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/ratelimit"
	"github.com/Robertja98/simple-auth/internal/repository"
	"github.com/Robertja98/simple-auth/internal/security"
	"github.com/Robertja98/simple-auth/internal/service"
	"github.com/Robertja98/simple-auth/internal/session"
	"github.com/Robertja98/simple-auth/internal/store"
	"github.com/Robertja98/simple-auth/pkg/errors"
	"github.com/Robertja98/simple-auth/pkg/validator"
)

// localClientIP stands in for the request IP in the interactive CLI; a web
// front end would supply the extracted client address instead.
const localClientIP = "127.0.0.1"

type Application struct {
	config       *config.Config
	store        *store.Store
	authService  *service.AuthService
	auditLogger  *audit.Logger
	auditMonitor *audit.Monitor
	backupMgr    *backup.Manager
	sweeper      *maintenance.Sweeper
	rateLimiter  *ratelimit.RateLimiter
	userRepo     *repository.UserRepository
	sessionCtx   *service.SessionContext
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("  Simple Auth - Credential & Session Demo")
	fmt.Println("===========================================")
	fmt.Println()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	fmt.Println("[OK] Application initialized successfully")
	fmt.Println("[OK] Record store ready at", cfg.DataDir)
	fmt.Println("[OK] Audit logging enabled")
	fmt.Println("[OK] Rate limiting active")
	fmt.Println()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\n[Shutdown] Received shutdown signal...")
		cancel()
	}()

	// Start background workers
	if cfg.BackupEncryptionKey != "" {
		go app.backupMgr.StartAutomatedBackups(ctx, cfg.BackupInterval)
	}
	go app.rateLimiter.StartCleanupWorker(ctx, 1*time.Hour)
	go app.sweeper.Start(ctx, 1*time.Hour)
	go app.startSecurityMonitoring(ctx)

	// Run interactive CLI
	app.runCLI(ctx)
}

// initializeApplication sets up all application components
func initializeApplication(cfg *config.Config) (*Application, error) {
	st, err := store.Open(cfg.DataDir, cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(st)
	sessionRepo := repository.NewSessionRepository(st)
	attemptRepo := repository.NewLoginAttemptRepository(st)
	activityRepo := repository.NewActivityLogRepository(st)

	// Initialize audit logger
	auditLogger, err := audit.NewLogger(activityRepo, cfg.AuditLogPath, cfg.ActivityLogEnabled, cfg.AuditAsyncMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	// Initialize security monitor
	auditMonitor := audit.NewMonitor(st, auditLogger)

	// Initialize rate limiter and login guard
	rateLimiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	guard := ratelimit.NewLoginGuard(attemptRepo, userRepo, cfg.MaxLoginAttempts, cfg.RateLimitWindow, cfg.LockoutDuration)

	// Initialize credential engine
	hasher := security.NewPasswordHasherWithParams(cfg.Argon2Memory, cfg.Argon2Time, cfg.Argon2Threads)
	v := validator.New(validator.Rules{
		UsernameMinLength:      cfg.UsernameMinLength,
		UsernameMaxLength:      cfg.UsernameMaxLength,
		PasswordMinLength:      cfg.PasswordMinLength,
		PasswordRequireUpper:   cfg.PasswordRequireUpper,
		PasswordRequireLower:   cfg.PasswordRequireLower,
		PasswordRequireNumber:  cfg.PasswordRequireNumber,
		PasswordRequireSpecial: cfg.PasswordRequireSpecial,
	})

	// Initialize session manager
	sessions := session.NewManager(sessionRepo, cfg.SessionLifetime, cfg.RememberMeLifetime)

	// Initialize auth facade
	authService := service.NewAuthService(
		userRepo,
		attemptRepo,
		activityRepo,
		sessions,
		guard,
		hasher,
		v,
		rateLimiter,
		auditLogger,
		service.Options{
			RequireEmailVerification: cfg.RequireEmailVerification,
			CsrfTokenLength:          cfg.CsrfTokenLength,
		},
	)

	// Initialize maintenance sweeper
	sweeper := maintenance.NewSweeper(sessionRepo, attemptRepo, activityRepo)

	// Initialize backup manager
	backupMgr, err := backup.NewManager(cfg.DataDir, cfg.BackupDir, cfg.BackupEncryptionKey, cfg.BackupRetentionDays)
	if err != nil {
		auditLogger.Close()
		return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
	}

	return &Application{
		config:       cfg,
		store:        st,
		authService:  authService,
		auditLogger:  auditLogger,
		auditMonitor: auditMonitor,
		backupMgr:    backupMgr,
		sweeper:      sweeper,
		rateLimiter:  rateLimiter,
		userRepo:     userRepo,
	}, nil
}

// cleanup performs cleanup operations
func (app *Application) cleanup() {
	fmt.Println("\n[Cleanup] Shutting down gracefully...")

	if app.auditLogger != nil {
		app.auditLogger.Close()
	}

	fmt.Println("[Cleanup] Done")
}

// startSecurityMonitoring runs security monitoring in background
func (app *Application) startSecurityMonitoring(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.auditMonitor.DetectSuspiciousActivity(); err != nil {
				log.Printf("[Security] Monitoring error: %v", err)
			}
		}
	}
}

// runCLI runs the interactive command-line interface
func (app *Application) runCLI(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			authenticated, _ := app.authService.IsAuthenticated(ctx, app.sessionCtx)

			if authenticated {
				app.showMainMenu()
			} else {
				app.showAuthMenu()
			}

			fmt.Print("\nSelect option: ")
			if !scanner.Scan() {
				return
			}

			choice := strings.TrimSpace(scanner.Text())
			fmt.Println()

			if authenticated {
				app.handleMainChoice(ctx, choice, scanner)
			} else {
				app.handleAuthChoice(ctx, choice, scanner)
			}
		}
	}
}

// showAuthMenu displays authentication menu
func (app *Application) showAuthMenu() {
	fmt.Println("\n--- Authentication Menu ---")
	fmt.Println("1. Register")
	fmt.Println("2. Login")
	fmt.Println("3. Exit")
}

// showMainMenu displays main menu
func (app *Application) showMainMenu() {
	fmt.Printf("\n--- Main Menu (User: %s) ---\n", app.sessionCtx.Username)
	fmt.Println("1. Show Profile")
	fmt.Println("2. Change Password")
	fmt.Println("3. Account Stats")
	fmt.Println("4. Run Maintenance Sweep")
	fmt.Println("5. Create Backup")
	fmt.Println("6. Logout")
}

// handleAuthChoice processes authentication menu choices
func (app *Application) handleAuthChoice(ctx context.Context, choice string, scanner *bufio.Scanner) {
	switch choice {
	case "1":
		app.handleRegister(ctx, scanner)
	case "2":
		app.handleLogin(ctx, scanner)
	case "3":
		fmt.Println("Goodbye!")
		os.Exit(0)
	default:
		fmt.Println("Invalid option")
	}
}

// handleMainChoice processes main menu choices
func (app *Application) handleMainChoice(ctx context.Context, choice string, scanner *bufio.Scanner) {
	switch choice {
	case "1":
		app.handleShowProfile(ctx)
	case "2":
		app.handleChangePassword(ctx, scanner)
	case "3":
		app.handleStats(ctx)
	case "4":
		app.handleMaintenance(ctx)
	case "5":
		app.handleBackup()
	case "6":
		app.handleLogout(ctx)
	default:
		fmt.Println("Invalid option")
	}
}

func (app *Application) handleRegister(ctx context.Context, scanner *bufio.Scanner) {
	username := prompt(scanner, "Username: ")
	email := prompt(scanner, "Email: ")
	password := prompt(scanner, "Password: ")

	result, err := app.authService.Register(ctx, &models.CreateUserRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		printAuthError(err)
		return
	}

	fmt.Printf("Registered successfully (user id %d)\n", result.UserID)
	if result.RequiresVerification {
		fmt.Println("Check your email for the verification token.")
	}
}

func (app *Application) handleLogin(ctx context.Context, scanner *bufio.Scanner) {
	identifier := prompt(scanner, "Username or email: ")
	password := prompt(scanner, "Password: ")
	rememberMe := strings.EqualFold(prompt(scanner, "Remember me? (y/N): "), "y")

	resp, sctx, err := app.authService.Login(ctx, &models.LoginRequest{
		UsernameOrEmail: identifier,
		Password:        password,
		RememberMe:      rememberMe,
		IPAddress:       localClientIP,
		UserAgent:       "simple-auth-cli",
	})
	if err != nil {
		printAuthError(err)
		return
	}

	app.sessionCtx = sctx
	fmt.Printf("Welcome back, %s! Session expires %s\n",
		resp.User.Username, resp.ExpiresAt.Format(time.RFC1123))
}

func (app *Application) handleLogout(ctx context.Context) {
	if err := app.authService.Logout(ctx, app.sessionCtx); err != nil {
		fmt.Printf("Logout failed: %v\n", err)
		return
	}
	app.sessionCtx = nil
	fmt.Println("Logged out.")
}

func (app *Application) handleShowProfile(ctx context.Context) {
	profile, err := app.authService.GetCurrentUser(ctx, app.sessionCtx)
	if err != nil {
		printAuthError(err)
		return
	}

	fmt.Printf("ID:        %d\n", profile.ID)
	fmt.Printf("Username:  %s\n", profile.Username)
	fmt.Printf("Email:     %s\n", profile.Email)
	fmt.Printf("Member since: %s\n", profile.CreatedAt.Format("2006-01-02"))
	if profile.LastLogin != nil {
		fmt.Printf("Last login:   %s\n", profile.LastLogin.Format(time.RFC1123))
	}
}

func (app *Application) handleChangePassword(ctx context.Context, scanner *bufio.Scanner) {
	oldPassword := prompt(scanner, "Current password: ")
	newPassword := prompt(scanner, "New password: ")

	err := app.authService.ChangePassword(ctx, app.sessionCtx.UserID, oldPassword, newPassword,
		app.sessionCtx.IPAddress, app.sessionCtx.UserAgent)
	if err != nil {
		printAuthError(err)
		return
	}

	fmt.Println("Password changed.")
}

func (app *Application) handleStats(ctx context.Context) {
	stats, err := app.authService.GetUserStats(ctx, app.sessionCtx.UserID)
	if err != nil {
		printAuthError(err)
		return
	}

	fmt.Printf("Member since:     %s\n", stats.MemberSince.Format("2006-01-02"))
	if stats.LastLogin != nil {
		fmt.Printf("Last login:       %s\n", stats.LastLogin.Format(time.RFC1123))
	}
	fmt.Printf("Total logins:     %d\n", stats.TotalLogins)
	fmt.Printf("Total activities: %d\n", stats.TotalActivities)
}

func (app *Application) handleMaintenance(ctx context.Context) {
	report, err := app.sweeper.Sweep(ctx)
	if err != nil {
		fmt.Printf("Maintenance failed: %v\n", err)
		return
	}

	fmt.Printf("Removed %d expired sessions\n", report.ExpiredSessions)
	fmt.Printf("Removed %d old login attempts\n", report.OldAttempts)
	fmt.Printf("Removed %d old activity entries\n", report.OldActivities)
}

func (app *Application) handleBackup() {
	if app.config.BackupEncryptionKey == "" {
		fmt.Println("Set BACKUP_ENCRYPTION_KEY to enable backups.")
		return
	}

	path, err := app.backupMgr.CreateBackup()
	if err != nil {
		fmt.Printf("Backup failed: %v\n", err)
		return
	}

	fmt.Printf("Backup created at %s\n", path)
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// printAuthError renders facade errors, expanding aggregated validation
// messages.
func printAuthError(err error) {
	var vErr *errors.ValidationError
	if stderrors.As(err, &vErr) {
		fmt.Println("Validation failed:")
		for _, violation := range vErr.Violations {
			fmt.Printf("  - %s\n", violation)
		}
		return
	}

	fmt.Printf("Error: %v\n", err)
}
