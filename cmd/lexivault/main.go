// Package main provides the CLI entrypoint for lexivault.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/lexivault/internal/autosave"
	"github.com/verte-zerg/lexivault/internal/config"
	"github.com/verte-zerg/lexivault/internal/kv"
	"github.com/verte-zerg/lexivault/internal/logger"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/report"
	"github.com/verte-zerg/lexivault/internal/selftest"
	"github.com/verte-zerg/lexivault/internal/vault"
)

const (
	defaultBackend     = kv.BackendSQLite
	defaultRedisPrefix = "lexivault:"
	defaultInterval    = 30 * time.Second
	defaultLogMode     = "off"
)

var (
	storageBackend string
	storagePath    string
	storageQuota   int64
	redisAddr      string
	redisPrefix    string
	autosaveEvery  string
	logMode        string

	grantXP      int
	grantCredits int
	grantStreak  int

	exportOut string
	resetYes  bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lexivault",
		Short:         "Local progress store for vocabulary practice",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runStatusCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&storageBackend, "backend", defaultBackend, "storage backend: sqlite, memory or redis")
	flags.StringVar(&storagePath, "db", config.DefaultDBPath(), "SQLite database path")
	flags.Int64Var(&storageQuota, "quota-bytes", 0, "storage quota in bytes (0 disables)")
	flags.StringVar(&redisAddr, "redis-addr", "", "redis address (host:port)")
	flags.StringVar(&redisPrefix, "redis-prefix", defaultRedisPrefix, "redis key prefix")
	flags.StringVar(&autosaveEvery, "autosave", defaultInterval.String(), "autosave interval")
	flags.StringVar(&logMode, "log", defaultLogMode, "log mode: off, dev or prod")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBootCmd())
	rootCmd.AddCommand(newGrantCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newSelftestCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// resolveConfig merges the config file under the command line flags.
func resolveConfig(cmd *cobra.Command) (model.Config, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "backend", &storageBackend, fileCfg.Storage.Backend)
	applyStringConfig(cmd, "db", &storagePath, fileCfg.Storage.Path)
	applyInt64Config(cmd, "quota-bytes", &storageQuota, fileCfg.Storage.QuotaBytes)
	applyStringConfig(cmd, "redis-addr", &redisAddr, fileCfg.Storage.RedisAddr)
	applyStringConfig(cmd, "redis-prefix", &redisPrefix, fileCfg.Storage.RedisPrefix)
	applyStringConfig(cmd, "autosave", &autosaveEvery, fileCfg.Autosave.Interval)
	applyStringConfig(cmd, "log", &logMode, fileCfg.Log.Mode)

	interval, err := time.ParseDuration(autosaveEvery)
	if err != nil {
		return model.Config{}, fmt.Errorf("invalid --autosave value: %w", err)
	}
	cfg := model.Config{
		Backend:          strings.ToLower(strings.TrimSpace(storageBackend)),
		DBPath:           storagePath,
		QuotaBytes:       storageQuota,
		RedisAddr:        redisAddr,
		RedisPrefix:      redisPrefix,
		AutosaveInterval: interval,
		LogMode:          strings.ToLower(strings.TrimSpace(logMode)),
	}
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg model.Config) error {
	switch cfg.Backend {
	case kv.BackendSQLite:
		if cfg.DBPath == "" {
			return fmt.Errorf("--db must not be empty")
		}
	case kv.BackendMemory:
	case kv.BackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("--redis-addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("--backend must be one of sqlite, memory, redis")
	}
	if cfg.QuotaBytes < 0 {
		return fmt.Errorf("--quota-bytes must be >= 0")
	}
	if cfg.AutosaveInterval <= 0 {
		return fmt.Errorf("--autosave must be > 0")
	}
	switch cfg.LogMode {
	case "off", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("--log must be one of off, dev, prod")
	}
	return nil
}

// app is the booted state shared by commands that read or write the record.
type app struct {
	cfg   model.Config
	log   *logger.Logger
	vault *vault.Vault
	boot  vault.BootResult
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	v, err := vault.Open(cmd.Context(), cfg, vault.WithLogger(log))
	if err != nil {
		log.Sync()
		return nil, err
	}
	res, err := v.Boot(cmd.Context())
	if err != nil {
		// Best-effort close.
		_ = v.Close()
		log.Sync()
		return nil, fmt.Errorf("failed to boot: %w", err)
	}
	return &app{cfg: cfg, log: log, vault: v, boot: res}, nil
}

func (a *app) close() {
	if err := a.vault.Close(); err != nil {
		logErrf("failed to close storage: %v\n", err)
	}
	a.log.Sync()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored progress",
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	lines := []string{heading(out, "Progress")}
	lines = append(lines, report.Summary(a.boot.Record)...)
	if scores := report.HighScores(a.boot.Record); len(scores) > 0 {
		lines = append(lines, "", heading(out, "High scores"))
		lines = append(lines, scores...)
	}
	return writeLines(out, lines)
}

func newBootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Run reconciliation and print its log",
		Args:  cobra.NoArgs,
		RunE:  runBootCmd,
	}
}

func runBootCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	lines := []string{
		fmt.Sprintf("source: %s", a.boot.Source),
		fmt.Sprintf("revision: %d", a.boot.Revision),
	}
	if a.boot.SourceKey != "" {
		lines = append(lines, fmt.Sprintf("key: %s", a.boot.SourceKey))
	}
	for _, entry := range a.boot.Logs {
		lines = append(lines, "  "+entry)
	}
	return writeLines(cmd.OutOrStdout(), lines)
}

func newGrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add xp, credits or streak days and save",
		Args:  cobra.NoArgs,
		RunE:  runGrantCmd,
	}
	cmd.Flags().IntVar(&grantXP, "xp", 0, "xp to add")
	cmd.Flags().IntVar(&grantCredits, "credits", 0, "credits to add")
	cmd.Flags().IntVar(&grantStreak, "streak", 0, "streak days to add")
	return cmd
}

func runGrantCmd(cmd *cobra.Command, _ []string) error {
	if grantXP < 0 || grantCredits < 0 || grantStreak < 0 {
		return fmt.Errorf("--xp, --credits and --streak must be >= 0")
	}
	if grantXP == 0 && grantCredits == 0 && grantStreak == 0 {
		return fmt.Errorf("nothing to grant")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	session := autosave.NewSession(a.vault, a.boot, a.log)
	session.Update(func(rec *model.Record) {
		rec.XP += grantXP
		rec.Credits += grantCredits
		rec.Streak += grantStreak
		rec.LastActive = time.Now().Format("2006-01-02")
	})
	res := session.Flush(cmd.Context())
	if err := res.Err(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	rec := session.Snapshot()
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved revision %d (xp %d, credits %d, streak %d)\n",
		res.Revision, rec.XP, rec.Credits, rec.Streak)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Apply grants read from stdin with periodic autosave",
		Long: `Reads lines of the form "<field> <amount>" from stdin, where field is xp,
credits or streak. Changes are saved every autosave interval and once more at EOF.`,
		Args: cobra.NoArgs,
		RunE: runSessionCmd,
	}
}

func runSessionCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	session := autosave.NewSession(a.vault, a.boot, a.log)
	if err := session.Start(a.cfg.AutosaveInterval); err != nil {
		return err
	}
	defer session.Stop()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		apply, err := parseGrantLine(line)
		if err != nil {
			logErrf("line %d: %v\n", lineNo, err)
			continue
		}
		session.Update(apply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	session.Stop()
	res := session.Flush(cmd.Context())
	if err := res.Err(); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved revision %d\n", session.Revision())
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func parseGrantLine(line string) (func(*model.Record), error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, fmt.Errorf("expected \"<field> <amount>\", got %q", line)
	}
	amount, err := strconv.Atoi(fields[1])
	if err != nil || amount < 0 {
		return nil, fmt.Errorf("invalid amount %q", fields[1])
	}
	switch strings.ToLower(fields[0]) {
	case "xp":
		return func(rec *model.Record) { rec.XP += amount }, nil
	case "credits":
		return func(rec *model.Record) { rec.Credits += amount }, nil
	case "streak":
		return func(rec *model.Record) { rec.Streak += amount }, nil
	default:
		return nil, fmt.Errorf("unknown field %q", fields[0])
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the stored record as JSON",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	raw, ok, err := a.vault.Raw(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	if !ok {
		return fmt.Errorf("no record stored yet")
	}
	if exportOut == "" {
		return writeLines(cmd.OutOrStdout(), []string{raw})
	}
	if err := writeFileAtomic(exportOut, []byte(raw+"\n")); err != nil {
		return err
	}
	logErrf("Wrote %s\n", exportOut)
	return nil
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List keys present in storage",
		Args:  cobra.NoArgs,
		RunE:  runKeysCmd,
	}
}

func runKeysCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	keys, err := a.vault.Keys(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	return writeLines(cmd.OutOrStdout(), keys)
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace stored progress with defaults",
		Args:  cobra.NoArgs,
		RunE:  runResetCmd,
	}
	cmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
	return cmd
}

func runResetCmd(cmd *cobra.Command, _ []string) error {
	if !resetYes {
		return fmt.Errorf("refusing to reset without --yes")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.vault.Reset(cmd.Context())
	if err := res.Err(); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset to defaults at revision %d\n", res.Revision)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newSelftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check persistence guarantees against scratch storage",
		Args:  cobra.NoArgs,
		RunE:  runSelftestCmd,
	}
}

func runSelftestCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	rep := selftest.Run(cmd.Context(), log)
	lines := make([]string, 0, len(rep.Results))
	for _, res := range rep.Results {
		if res.Passed() {
			lines = append(lines, "PASS "+res.Name)
			continue
		}
		lines = append(lines, fmt.Sprintf("FAIL %s: %v", res.Name, res.Err))
	}
	if err := writeLines(cmd.OutOrStdout(), lines); err != nil {
		return err
	}
	if !rep.OK() {
		return fmt.Errorf("self-test failed")
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# lexivault configuration
# Uncomment a value to enable it. CLI flags override config values.

[storage]
# backend = %q          # sqlite, memory or redis
# path = %q
# quota-bytes = 0            # 0 disables the quota
# redis-addr = "localhost:6379"
# redis-prefix = %q

[autosave]
# interval = %q

[log]
# mode = %q               # off, dev or prod
`,
		defaultBackend,
		config.DefaultDBPath(),
		defaultRedisPrefix,
		defaultInterval.String(),
		defaultLogMode,
	)
}

func heading(w io.Writer, text string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return text
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render(text)
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "export-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp export: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
