package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/droid-bg/Outlook-MCP-Server/internal/config"
	"github.com/droid-bg/Outlook-MCP-Server/internal/executor"
	"github.com/droid-bg/Outlook-MCP-Server/internal/handler"
	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/router"
	"github.com/droid-bg/Outlook-MCP-Server/internal/search"
	"github.com/droid-bg/Outlook-MCP-Server/internal/service"
	"github.com/droid-bg/Outlook-MCP-Server/internal/session"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store/gmail"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store/imap"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store/memory"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal("Config validation failed:", err)
	}

	// Initialize logger
	appLogger := logger.New()

	// Initialize the mail store backend
	var mailStore store.Store
	switch cfg.MailStore {
	case "imap":
		mailStore = imap.NewStore(cfg.IMAPHost, cfg.IMAPPort, cfg.IMAPUsername, cfg.IMAPPassword, cfg.IMAPTLS, appLogger)
		appLogger.Info("Using IMAP mail store at", cfg.IMAPHost)
	case "gmail":
		mailStore = gmail.NewStore(cfg.GmailAccessToken, appLogger)
		appLogger.Info("Using Gmail mail store")
	default:
		mailStore = seedDemoStore()
		appLogger.Info("Using in-memory mail store with demo data")
	}

	if !cfg.SharedMailboxConfigured() {
		appLogger.Warn("SHARED_MAILBOX_EMAIL is unset or a placeholder; searches cover the personal mailbox only")
	}

	// Session lifecycle and search engine, both confined to the affinity
	// executor's worker
	sessionManager := session.NewManager(mailStore, cfg, appLogger)
	searchEngine := search.NewEngine(mailStore, sessionManager, cfg, appLogger)

	exec := executor.New(appLogger,
		executor.WithInit(func(ctx context.Context) error {
			return sessionManager.EnsureConnected(ctx)
		}),
		executor.WithTeardown(func() {
			if err := mailStore.Close(); err != nil {
				appLogger.Error("Error closing mail store:", err)
			}
		}),
	)

	// Initialize services
	mailService := service.NewMailService(exec, sessionManager, searchEngine, cfg, appLogger)

	// Initialize handlers
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	toolHandler := handler.NewToolHandler(mailService, e.Logger)

	// Setup routes
	router.SetupRoutes(e, toolHandler)

	// Start server
	go func() {
		appLogger.Info("Starting server on port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server:", err)
		}
	}()

	// Wait for an interrupt, then drain in-flight work before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown error:", err)
	}
	if err := exec.Shutdown(5 * time.Second); err != nil {
		appLogger.Error("Worker shutdown error:", err)
	}
}

// seedDemoStore builds the in-memory backend with a handful of messages
// so the tool surface is explorable without mail credentials.
func seedDemoStore() *memory.Store {
	st := memory.NewStore()
	now := time.Now().UTC()

	inbox := st.PersonalMailbox().InboxFolder()
	inbox.Add(
		memory.NewMessage("Order #1042 confirmation", "Ana Souza", "ana.souza@contoso.com",
			"Your order #1042 has shipped and should arrive within three business days.", now.Add(-72*time.Hour)),
		memory.NewMessage("Re: Order #1042 confirmation", "Support", "support@contoso.com",
			"Following up on the shipping question about order #1042.", now.Add(-48*time.Hour)),
		memory.NewMessage("Quarterly report draft", "Miguel Ortega", "miguel.ortega@contoso.com",
			"Attached is the quarterly report draft for review before Friday.", now.Add(-24*time.Hour)),
	)

	projects := inbox.AddChild("Projects")
	projects.Add(
		memory.NewMessage("Project Atlas kickoff notes", "Priya Nair", "priya.nair@contoso.com",
			"Notes from the Atlas kickoff meeting, action items inside.", now.Add(-96*time.Hour)),
	)

	sent := st.PersonalMailbox().TopLevelFolder("Sent Items")
	sent.Add(
		memory.NewMessage("Re: Quarterly report draft", "Demo User", "demo.user@contoso.com",
			"Thanks, I will review the quarterly report draft today.", now.Add(-20*time.Hour)),
	)

	return st
}
