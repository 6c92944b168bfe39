package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/config"
	"github.com/abz10m/mrctl/internal/logging"
)

// initFlagName, initFlagForce, and initFlagInteractive are the flag values
// for the init subcommand.
var (
	initFlagName        string
	initFlagForce       bool
	initFlagInteractive bool
)

// initCmd implements "mrctl init [template]".
// It scaffolds a new mrctl project from an embedded template without
// requiring an existing mrctl.toml -- making it safe to run in a fresh
// directory.
var initCmd = &cobra.Command{
	Use:   "init [template]",
	Short: "Initialize a new mrctl project from a template",
	Long: `Initialize a new mrctl project directory by rendering an embedded
project template: an mrctl.toml with sane defaults and an example job spec.
Existing files are preserved unless --force is supplied.

Naming an unknown template prints the list of available templates.

Examples:
  mrctl init                        # scaffold the default template in current directory
  mrctl init default --name my-svc  # scaffold with explicit project name
  mrctl init default --force        # overwrite existing files
  mrctl init --interactive          # walk through job/agent settings with a wizard`,
	Args: cobra.MaximumNArgs(1),

	// Override PersistentPreRunE so the init command never attempts to load an
	// mrctl.toml. We still replicate the env-var checks, logging setup, color
	// disable, and --dir handling from the root PersistentPreRunE.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check env vars for flags not explicitly set on the command line.
		if !cmd.Root().PersistentFlags().Changed("verbose") && os.Getenv("MRCTL_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Root().PersistentFlags().Changed("quiet") && os.Getenv("MRCTL_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Root().PersistentFlags().Changed("no-color") &&
			(os.Getenv("NO_COLOR") != "" || os.Getenv("MRCTL_NO_COLOR") != "") {
			flagNoColor = true
		}

		// Initialize logging.
		jsonFormat := os.Getenv("MRCTL_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		// Handle --no-color: disable coloured output.
		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		// Handle --dir (change working directory).
		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}

		return nil
	},

	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlagName, "name", "n", "", "Project name (defaults to current directory name)")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVarP(&initFlagInteractive, "interactive", "i", false, "Walk through job/agent settings with an interactive wizard")
	rootCmd.AddCommand(initCmd)
}

// runInit is the RunE handler for the init command.
func runInit(cmd *cobra.Command, args []string) error {
	// Resolve the template name (default: "default").
	templateName := "default"
	if len(args) > 0 {
		templateName = args[0]
	}

	// Validate that the requested template exists.
	if !config.TemplateExists(templateName) {
		available, listErr := config.ListTemplates()
		if listErr != nil {
			return fmt.Errorf("listing available templates: %w", listErr)
		}
		return fmt.Errorf("template %q not found; available templates: %s",
			templateName, strings.Join(available, ", "))
	}

	// Resolve the destination directory (current working directory after any
	// --dir change applied in PersistentPreRunE).
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Resolve the project name.
	projectName := initFlagName
	if projectName == "" {
		projectName = filepath.Base(destDir)
	}

	// Reject path traversal in project name.
	if strings.Contains(projectName, "../") || strings.Contains(projectName, "..\\") {
		return fmt.Errorf("invalid project name %q: must not contain path traversal sequences", projectName)
	}

	// Guard against overwriting an existing mrctl.toml unless --force is set.
	mrctlToml := filepath.Join(destDir, "mrctl.toml")
	if _, statErr := os.Stat(mrctlToml); statErr == nil && !initFlagForce {
		return fmt.Errorf("mrctl.toml already exists in %s; use --force to overwrite", destDir)
	}

	vars := config.TemplateVars{
		ProjectName: projectName,
		ModulePath:  "github.com/example/" + projectName,
	}

	// Render the template.
	created, err := config.RenderTemplate(templateName, destDir, vars, initFlagForce)
	if err != nil {
		return fmt.Errorf("rendering template %q: %w", templateName, err)
	}

	// --- Success output (all to stderr) ---
	stderr := os.Stderr

	if initFlagInteractive {
		wizardCfg, wizardErr := runInitWizard(projectName)
		if errors.Is(wizardErr, ErrWizardCancelled) {
			fmt.Fprintln(stderr, "Wizard cancelled; keeping the scaffolded defaults as-is.")
		} else if wizardErr != nil {
			return fmt.Errorf("running init wizard: %w", wizardErr)
		} else if writeErr := writeWizardConfig(mrctlToml, wizardCfg); writeErr != nil {
			return fmt.Errorf("writing wizard configuration: %w", writeErr)
		}
	}

	fmt.Fprintf(stderr, "Initialized project %q from template %q\n\n", projectName, templateName)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			// Print relative paths when possible for readability.
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Edit %s to configure your project\n", mrctlToml)
	fmt.Fprintln(stderr, "  2. Edit job.toml to describe your map/reduce steps")
	fmt.Fprintln(stderr, "  3. Run: mrctl run job.toml")

	return nil
}

// writeWizardConfig overlays the wizard's answers onto config.NewDefaults()
// and replaces mrctlToml with the resulting TOML -- the wizard only asks
// about a handful of fields, so starting from the full defaults keeps every
// other section (checkpoint/dlq/retention/workspace) at a sane value rather
// than zeroing them out.
func writeWizardConfig(mrctlToml string, wizardCfg *config.Config) error {
	full := config.NewDefaults()
	full.Job.MaxParallel = wizardCfg.Job.MaxParallel
	full.Job.MaxRetries = wizardCfg.Job.MaxRetries
	full.Agents = wizardCfg.Agents

	f, err := os.OpenFile(mrctlToml, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", mrctlToml, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(full); err != nil {
		return fmt.Errorf("encoding %s: %w", mrctlToml, err)
	}
	return nil
}
