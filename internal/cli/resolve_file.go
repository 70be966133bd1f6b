package cli

import (
	"flag"
	"fmt"
	"os"

	"forumport/internal/config"
	"forumport/internal/resolver"
)

// ResolveFileCommand runs the attachment pattern resolver against a single
// encoded reference and prints what every tier matched. Debugging aid for
// attachments the migration reported as unresolved.
type ResolveFileCommand struct {
	Root         string
	DirectoryKey string
	PathKey      string
	FileName     string
}

func NewResolveFileCommand() *ResolveFileCommand {
	return &ResolveFileCommand{}
}

func (cmd *ResolveFileCommand) ParseFlags(args []string) error {
	cfg := config.NewConfig()
	fs := flag.NewFlagSet("resolve-file", flag.ExitOnError)

	fs.StringVar(&cmd.Root, "root", cfg.Attachments.Root, "Root of the legacy file store (required, or set ATTACHMENTS_ROOT)")
	fs.StringVar(&cmd.DirectoryKey, "dir", "", "Encoded directory key from the reference URL (required)")
	fs.StringVar(&cmd.PathKey, "path", "", "Encoded path key from the reference URL")
	fs.StringVar(&cmd.FileName, "name", "", "Encoded file name (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s resolve-file -root <dir> -dir <key> -path <key> -name <file>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show how each matching tier resolves an encoded attachment reference.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s resolve-file -root /srv/files -dir Community-Files -path forum+archive.media -name img_28_name.jpg\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Root == "" {
		return fmt.Errorf("required flag -root not provided")
	}
	if cmd.DirectoryKey == "" || cmd.FileName == "" {
		return fmt.Errorf("both -dir and -name are required")
	}
	return nil
}

func (cmd *ResolveFileCommand) Run() error {
	r := resolver.New(cmd.Root)

	for _, res := range r.Trace(cmd.DirectoryKey, cmd.PathKey, cmd.FileName) {
		fmt.Printf("%-8s %-10s %s\n", res.Stage, res.Outcome, res.Pattern)
		for _, m := range res.Matches {
			fmt.Printf("         -> %s\n", m)
		}
	}

	path, ok := r.Resolve(cmd.DirectoryKey, cmd.PathKey, cmd.FileName)
	if !ok {
		fmt.Printf("\nNot resolved. Literal path would be:\n  %s\n", path)
		return nil
	}
	fmt.Printf("\nResolved:\n  %s\n", path)
	return nil
}
