package app

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"bankassist/internal/accounts"
	"bankassist/internal/api"
	"bankassist/internal/chat"
	"bankassist/internal/config"
	"bankassist/internal/session"
	"bankassist/internal/telemetry"
	"bankassist/internal/transcript"
)

// App composes the three state owners behind an interactive terminal UI.
// It only reads their snapshots and forwards user intents; all state changes
// go through the owners' operations.
type App struct {
	config     config.Config
	logger     *slog.Logger
	db         *sql.DB
	gate       *session.Gate
	aggregator *accounts.Aggregator
	engine     *chat.Engine
	transcript *transcript.Store

	showBalances bool
}

// New wires up the application.
func New(cfg config.Config) (*App, error) {
	logger, err := telemetry.InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, _, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := telemetry.InitDB(cfg.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	client, err := api.NewClient(cfg.ServiceURL, cfg.RequestTimeout, logger, tracer, meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	a := &App{
		config:       cfg,
		logger:       logger,
		db:           db,
		gate:         session.NewGate(client, logger),
		aggregator:   accounts.NewAggregator(client, logger),
		engine:       chat.NewEngine(client, chat.Options{Mode: cfg.Mode}, logger),
		transcript:   transcript.NewStore(db, logger),
		showBalances: true,
	}

	a.engine.SetRecorder(a.transcript.Record)
	a.gate.OnReset(func() {
		a.aggregator.Reset()
		a.engine.Reset()
		a.transcript.Close()
	})

	return a, nil
}

// Run starts the interactive session.
func (a *App) Run() error {
	defer a.db.Close()

	fmt.Println("=== Amen Bank — Assistant Bancaire ===")
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	identity := a.gate.CheckExisting(ctx)
	if identity != nil {
		fmt.Printf("Bienvenue, %s\n\n", identity.DisplayName)
		a.startSession(ctx, identity)
	} else {
		if !a.promptLogin(ctx, scanner) {
			return nil
		}
	}

	for {
		fmt.Print("Vous: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := a.handleCommand(ctx, scanner, input)
			if err != nil {
				fmt.Printf("Erreur: %v\n", err)
				a.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		a.sendMessage(ctx, input)
	}

	fmt.Println("Au revoir !")
	return nil
}

// promptLogin asks for credentials until login succeeds or input ends.
func (a *App) promptLogin(ctx context.Context, scanner *bufio.Scanner) bool {
	for {
		fmt.Print("Nom d'utilisateur: ")
		if !scanner.Scan() {
			return false
		}
		username := strings.TrimSpace(scanner.Text())

		fmt.Print("Mot de passe: ")
		if !scanner.Scan() {
			return false
		}
		password := scanner.Text()

		identity, err := a.gate.Login(ctx, username, password)
		if err != nil {
			fmt.Printf("%v\n\n", err)
			continue
		}

		fmt.Printf("Bienvenue, %s\n\n", identity.DisplayName)
		a.startSession(ctx, identity)
		return true
	}
}

// startSession opens the conversation and loads the dashboard.
func (a *App) startSession(ctx context.Context, identity *api.Identity) {
	if err := a.transcript.Begin(a.config.Mode, identity.Username); err != nil {
		a.logger.Warn("failed to start transcript", "error", err)
	}

	a.engine.Open(ctx, identity)

	if _, err := a.aggregator.LoadAccounts(ctx); err != nil {
		fmt.Println("Impossible de charger vos comptes. Utilisez /accounts pour réessayer.")
	} else {
		a.printAccounts()
	}

	state := a.engine.Snapshot()
	for _, msg := range state.Messages {
		fmt.Printf("Assistant: %s\n\n", msg.Content)
	}
	a.printSuggestions()
}

// sendMessage forwards user text to the engine and renders the reply.
func (a *App) sendMessage(ctx context.Context, text string) {
	reply, err := a.engine.Send(ctx, text)
	switch err {
	case nil:
	case chat.ErrBusy:
		fmt.Println("L'assistant réfléchit... veuillez patienter.")
		return
	case chat.ErrEmptyMessage:
		return
	default:
		fmt.Printf("Erreur: %v\n", err)
		return
	}

	fmt.Printf("Assistant: %s\n", reply.Content)
	if reply.Intent != "" {
		fmt.Printf("  [%s]\n", reply.Intent)
	}
	if reply.ActionRequired {
		fmt.Println("  (action requise : rendez-vous en agence ou confirmez dans l'application)")
	}
	fmt.Println()
}

// handleCommand handles slash commands. Returns true to quit.
func (a *App) handleCommand(ctx context.Context, scanner *bufio.Scanner, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/login":
		if a.gate.Authenticated() {
			fmt.Println("Vous êtes déjà connecté. Utilisez /logout d'abord.")
			return false, nil
		}
		a.promptLogin(ctx, scanner)
		return false, nil

	case "/logout":
		a.gate.Logout(ctx)
		fmt.Println("Déconnexion réussie.")
		return false, nil

	case "/accounts":
		if _, err := a.aggregator.LoadAccounts(ctx); err != nil {
			return false, err
		}
		a.printAccounts()
		return false, nil

	case "/history":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /history <n> (numéro du compte dans la liste)")
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			return false, fmt.Errorf("usage: /history <n> (numéro du compte dans la liste)")
		}
		return false, a.openHistory(ctx, index)

	case "/close":
		a.aggregator.CloseDrilldown()
		return false, nil

	case "/suggestions":
		if err := a.engine.RefreshSuggestions(ctx); err != nil {
			a.logger.Warn("suggestion refresh failed", "error", err)
		}
		a.printSuggestions()
		return false, nil

	case "/mask":
		a.showBalances = !a.showBalances
		a.printAccounts()
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /login          - Se connecter")
		fmt.Println("  /logout         - Se déconnecter")
		fmt.Println("  /accounts       - Recharger la liste des comptes")
		fmt.Println("  /history <n>    - Historique des transactions du compte n")
		fmt.Println("  /close          - Fermer l'historique")
		fmt.Println("  /suggestions    - Rafraîchir les suggestions")
		fmt.Println("  /mask           - Masquer/afficher les soldes")
		fmt.Println("  /quit, /exit    - Quitter")
		return false, nil

	default:
		return false, nil
	}
}

// openHistory opens the drilldown for the nth listed account and renders it.
func (a *App) openHistory(ctx context.Context, index int) error {
	list := a.aggregator.Accounts()
	if index < 1 || index > len(list) {
		return fmt.Errorf("compte %d inconnu (1-%d)", index, len(list))
	}

	selection, err := a.aggregator.OpenDrilldown(ctx, list[index-1])
	if err != nil {
		if err == accounts.ErrSuperseded {
			return nil
		}
		fmt.Println("Impossible de charger l'historique. Réessayez avec /history.")
		return err
	}

	fmt.Printf("\nHistorique — %s (N° %s)\n", selection.Account.Label, selection.Account.Number)
	if len(selection.Transactions) == 0 {
		fmt.Println("Aucune transaction.")
	}
	for _, tx := range selection.Transactions {
		sign := "-"
		if tx.Direction == api.DirectionCredit {
			sign = "+"
		}
		fmt.Printf("  %s  %s%s  %s\n", tx.Date, sign, a.formatAmount(tx.Amount), tx.Description)
	}
	fmt.Println()
	return nil
}

func (a *App) printAccounts() {
	list := a.aggregator.Accounts()
	if len(list) == 0 {
		fmt.Println("Aucun compte à afficher.")
		return
	}

	fmt.Println("\nMes comptes:")
	for i, account := range list {
		fmt.Printf("  %d. %s %s (N° %s) — %s\n",
			i+1, accountBadge(account.Type), account.Label, account.Number, a.formatAmount(account.CurrentBalance))
	}
	fmt.Printf("Solde total: %s (%d compte(s))\n\n", a.formatAmount(accounts.TotalBalance(list)), len(list))
}

func (a *App) printSuggestions() {
	state := a.engine.Snapshot()
	if !state.ShouldShowSuggestions {
		return
	}
	fmt.Println("Suggestions:")
	for _, s := range state.Suggestions {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println()
}

func (a *App) formatAmount(amount float64) string {
	if !a.showBalances {
		return "••••••"
	}
	// TND uses three decimals.
	return fmt.Sprintf("%.3f DT", amount)
}

func accountBadge(accountType string) string {
	switch strings.ToLower(accountType) {
	case api.AccountTypeChecking:
		return "[courant]"
	case api.AccountTypeSavings:
		return "[épargne]"
	case api.AccountTypeBusiness:
		return "[entreprise]"
	default:
		return "[compte]"
	}
}
