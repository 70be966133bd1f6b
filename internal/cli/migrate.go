package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql" // source database driver

	"forumport/internal/categories"
	"forumport/internal/config"
	"forumport/internal/legacy"
	"forumport/internal/migrator"
	"forumport/internal/resolver"
	"forumport/internal/statestore"
	"forumport/internal/target"
	"forumport/internal/transform"
)

// MigrateCommand runs the full migration pipeline against the source DSN.
type MigrateCommand struct {
	SourceDSN       string
	StateDBPath     string
	TargetDBPath    string
	UploadsDir      string
	AttachmentsRoot string
	MappingPath     string
	BatchSize       int
	DryRun          bool
}

func NewMigrateCommand() *MigrateCommand {
	return &MigrateCommand{}
}

func (cmd *MigrateCommand) ParseFlags(args []string) error {
	cfg := config.NewConfig()
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)

	fs.StringVar(&cmd.SourceDSN, "source", cfg.Source.DSN, "MySQL DSN of the legacy database (required, or set SOURCE_DSN)")
	fs.StringVar(&cmd.StateDBPath, "state", cfg.State.Path, "Path to the migration state database")
	fs.StringVar(&cmd.TargetDBPath, "target", cfg.Target.Path, "Path to the target database")
	fs.StringVar(&cmd.UploadsDir, "uploads", cfg.Target.UploadsDir, "Directory for uploaded attachment files")
	fs.StringVar(&cmd.AttachmentsRoot, "attachments", cfg.Attachments.Root, "Root of the legacy file store (empty disables attachment processing)")
	fs.StringVar(&cmd.MappingPath, "mapping", cfg.Migration.MappingPath, "Category mapping YAML (empty infers categories from the source hierarchy)")
	fs.IntVar(&cmd.BatchSize, "batch", cfg.Migration.BatchSize, "Extraction batch size")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Verify connectivity and config without migrating")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s migrate -source <dsn> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Migrate a legacy forum database into the target platform.\n\n")
		fmt.Fprintf(os.Stderr, "The migration is resumable: interrupt it at any point and run the same\n")
		fmt.Fprintf(os.Stderr, "command again. Rows that already made it across are skipped.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Full migration with inferred categories:\n")
		fmt.Fprintf(os.Stderr, "  %s migrate -source \"user:pass@tcp(localhost:3306)/forum\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # With an explicit category layout and attachment files:\n")
		fmt.Fprintf(os.Stderr, "  %s migrate -source \"...\" -mapping categories.yml -attachments /srv/files\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.SourceDSN == "" {
		return fmt.Errorf("required flag -source not provided")
	}
	if cmd.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cmd.BatchSize)
	}
	return nil
}

func (cmd *MigrateCommand) Run() error {
	fmt.Println("Forum Migration")
	fmt.Println("===============")

	source, err := sql.Open("mysql", withParseTime(cmd.SourceDSN))
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer source.Close()

	ctx := context.Background()
	if err := source.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach source database: %w", err)
	}

	var mapping *categories.MappingConfig
	if cmd.MappingPath != "" {
		mapping, err = categories.LoadMapping(cmd.MappingPath)
		if err != nil {
			return err
		}
		fmt.Printf("Category mapping: %s (%d entries, %d ignored forums)\n",
			cmd.MappingPath, len(mapping.Mapping), len(mapping.Ignored()))
	} else {
		fmt.Println("Category mapping: inferred from source hierarchy")
	}

	reader := legacy.NewReader(source, cmd.BatchSize)

	if cmd.DryRun {
		return cmd.dryRun(ctx, reader)
	}

	state, err := statestore.Open(cmd.StateDBPath)
	if err != nil {
		return err
	}
	defer state.Close()

	store, err := target.OpenStore(cmd.TargetDBPath, cmd.UploadsDir)
	if err != nil {
		return err
	}
	defer store.Close()

	files := resolver.New(cmd.AttachmentsRoot)
	driver := migrator.New(migrator.Deps{
		Reader:          reader,
		State:           state,
		Client:          store,
		Transformer:     transform.New(cmd.AttachmentsRoot, files, store),
		Mapping:         mapping,
		AttachmentsRoot: cmd.AttachmentsRoot,
	})

	stats, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Migration Summary ===")
	fmt.Printf("Users:   %d\n", stats.Users)
	fmt.Printf("Topics:  %d\n", stats.Topics)
	fmt.Printf("Posts:   %d\n", stats.Posts)
	fmt.Printf("Solved:  %d\n", stats.Solved)
	fmt.Printf("Skipped: %d\n", stats.Skipped)
	return nil
}

func (cmd *MigrateCommand) dryRun(ctx context.Context, reader *legacy.Reader) error {
	fmt.Println("DRY RUN MODE - No changes will be made")

	groups, err := reader.Groups(ctx)
	if err != nil {
		return err
	}
	forums, err := reader.Forums(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nSource contains %d groups and %d forums\n", len(groups), len(forums))
	if cmd.AttachmentsRoot != "" {
		if _, err := os.Stat(cmd.AttachmentsRoot); err != nil {
			fmt.Printf("WARNING: attachments root not readable: %v\n", err)
		}
	} else {
		fmt.Println("Attachment processing disabled (no -attachments)")
	}
	fmt.Println("\nDry run complete. Use without -dry-run to migrate.")
	return nil
}

// withParseTime makes sure the MySQL driver returns DATETIME columns as
// time.Time values.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "parseTime=true"
}
