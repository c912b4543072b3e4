package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lead-submitter/pkg/browser"
	"lead-submitter/pkg/database"
	"lead-submitter/pkg/egress"
	"lead-submitter/pkg/geo"
	"lead-submitter/pkg/models"
	"lead-submitter/pkg/proxy"
	"lead-submitter/pkg/server"
	"lead-submitter/pkg/submit"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lead-submitter",
	Short: "Submits lead forms through geo-targeted proxy sessions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lead form web frontend",
	Run: func(cmd *cobra.Command, args []string) {
		db := optionalDB()
		if db != nil {
			defer db.Close()
		}

		orch, err := buildOrchestrator(db)
		if err != nil {
			logger.Error("Error building submission pipeline", "error", err)
			os.Exit(1)
		}

		srv, err := server.New(orch, logger)
		if err != nil {
			logger.Error("Error creating server", "error", err)
			os.Exit(1)
		}

		addr := viper.GetString("server.addr")
		if addr == "" {
			addr = ":8080"
		}
		logger.Info("Starting web frontend", "addr", addr)
		if err := http.ListenAndServe(addr, srv.Router()); err != nil {
			logger.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [full-name] [phone] [zip]",
	Short: "Run one submission from the command line",
	Long: `Run one complete submission attempt sequence for a single lead.
[full-name] must contain first and last name
[phone] must be exactly 10 digits
[zip] must be exactly 5 digits`,
	Example: `submit "Jane Doe" 5551234567 10001`,
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		db := optionalDB()
		if db != nil {
			defer db.Close()
		}

		orch, err := buildOrchestrator(db)
		if err != nil {
			logger.Error("Error building submission pipeline", "error", err)
			os.Exit(1)
		}

		req := models.NewSubmissionRequest(args[0], args[1], args[2])
		outcome := orch.Run(context.Background(), req)

		out, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			logger.Error("Error encoding outcome", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

		if !outcome.Success {
			os.Exit(1)
		}
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the attempts table and indexes",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("Database schema initialized")
	},
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts [zip]",
	Short: "List recent submission attempts, optionally filtered to one zip",
	Args:  cobra.RangeArgs(0, 1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		zip := ""
		if len(args) > 0 {
			zip = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")

		attempts, err := db.RecentAttempts(context.Background(), zip, limit)
		if err != nil {
			logger.Error("Error listing attempts", "error", err)
			os.Exit(1)
		}

		for _, a := range attempts {
			result := "success"
			if !a.Success {
				result = string(a.Failure)
			}
			fmt.Printf("%s  seq=%d zip=%s egress=%s verified=%t result=%s %s\n",
				a.StartedAt.Format(time.RFC3339), a.Seq, a.Zip, a.EgressIP, a.IPVerified, result, a.Detail)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attempt counts by failure kind",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		hours, _ := cmd.Flags().GetInt("hours")
		stats, err := db.FailureStats(context.Background(), time.Duration(hours)*time.Hour)
		if err != nil {
			logger.Error("Error getting failure stats", "error", err)
			os.Exit(1)
		}

		for kind, count := range stats {
			fmt.Printf("%-24s %d\n", kind, count)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	attemptsCmd.Flags().Int("limit", 50, "Maximum number of attempts to list")
	statsCmd.Flags().Int("hours", 24, "Window in hours to aggregate over")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(statsCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("browser.headless", true)
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.lead-submitter")
	viper.AddConfigPath("/etc/lead-submitter/")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		os.Exit(1)
	}
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

// optionalDB connects when database settings are present. The pipeline runs
// without persistence otherwise.
func optionalDB() *database.DB {
	if viper.GetString("database.host") == "" {
		logger.Warn("No database configured, attempts will not be persisted")
		return nil
	}
	db, err := initDB()
	if err != nil {
		logger.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	return db
}

// buildOrchestrator wires the full submission pipeline from config.
func buildOrchestrator(db *database.DB) (*submit.Orchestrator, error) {
	datasetPath := viper.GetString("geo.dataset")
	if datasetPath == "" {
		return nil, fmt.Errorf("geo.dataset is required")
	}
	index, err := geo.NewIndex(datasetPath, logger)
	if err != nil {
		return nil, fmt.Errorf("error loading zip dataset: %v", err)
	}

	providerConfig := proxy.Config{
		System:   proxy.System(viper.GetString("proxy.system")),
		Host:     viper.GetString("proxy.host"),
		Port:     viper.GetString("proxy.port"),
		Username: viper.GetString("proxy.username"),
		Password: viper.GetString("proxy.password"),
		Scheme:   viper.GetString("proxy.scheme"),
	}
	if providerConfig.System == "" || providerConfig.Host == "" {
		// Run proxyless when the proxy is not configured.
		providerConfig = proxy.Config{System: proxy.SystemNone}
	}
	provider, err := proxy.NewProvider(providerConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating proxy provider: %v", err)
	}

	verifier := egress.NewVerifier(egress.Config{
		EchoURL:     viper.GetString("form.echo_url"),
		IPInfoToken: viper.GetString("ipinfo.token"),
	}, logger)
	if _, err := verifier.ResolveDirect(context.Background()); err != nil {
		logger.Warn("Could not resolve direct egress IP, distinctness check disabled", "error", err)
	}

	browserConfig := browser.Config{
		Bin:            viper.GetString("browser.bin"),
		Headless:       viper.GetBool("browser.headless"),
		ViewportWidth:  viper.GetInt("browser.viewport_width"),
		ViewportHeight: viper.GetInt("browser.viewport_height"),
		FormURL:        viper.GetString("form.url"),
		NavTimeout:     time.Duration(viper.GetInt("browser.nav_timeout_sec")) * time.Second,
		ScriptTimeout:  time.Duration(viper.GetInt("browser.script_timeout_sec")) * time.Second,
		SubmitTimeout:  time.Duration(viper.GetInt("browser.submit_timeout_sec")) * time.Second,
		ScreenshotDir:  viper.GetString("browser.screenshot_dir"),
	}
	driver, err := browser.NewDriver(browserConfig, verifier, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating browser driver: %v", err)
	}

	settings := submit.Settings{
		MaxAttempts:     viper.GetInt("retry.max_attempts"),
		RadiusMiles:     viper.GetFloat64("retry.radius_miles"),
		RadiusStepMiles: viper.GetFloat64("retry.radius_step_miles"),
		MaxCandidates:   viper.GetInt("retry.max_candidates"),
	}

	var store submit.AttemptStore
	var enricher submit.Enricher
	if db != nil {
		store = db
	}
	if viper.GetString("ipinfo.token") != "" {
		enricher = verifier
	}

	return submit.NewOrchestrator(index, provider, driver, store, enricher, settings, logger), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
