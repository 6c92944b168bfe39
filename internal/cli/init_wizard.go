package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/abz10m/mrctl/internal/agent"
	"github.com/abz10m/mrctl/internal/config"
)

// ErrWizardCancelled is returned when the user cancels the interactive
// init wizard, either by pressing Ctrl+C or declining the final confirmation.
var ErrWizardCancelled = errors.New("wizard cancelled by user")

// wizardWidth is the fixed form width used by the wizard.
const wizardWidth = 80

// wizardAnswers holds the values collected across the init wizard's pages,
// which runInitWizard folds into a *config.Config that writeWizardConfig
// overlays onto config.NewDefaults().
type wizardAnswers struct {
	maxParallel string
	maxRetries  string
	agentNames  []string
	agentModel  string
}

// runInitWizard walks the operator through the handful of [job] and
// [agents.*] choices that matter most when scaffolding a new project, and
// returns a *config.Config fragment to overlay onto config.NewDefaults().
// Returns ErrWizardCancelled if the user cancels on the final page.
func runInitWizard(projectName string) (*config.Config, error) {
	answers := wizardAnswers{
		maxParallel: "4",
		maxRetries:  "3",
	}

	if err := runJobOptionsPage(&answers); err != nil {
		return nil, mapWizardErr(err)
	}
	if err := runAgentSelectPage(&answers); err != nil {
		return nil, mapWizardErr(err)
	}
	if len(answers.agentNames) > 0 {
		if err := runAgentModelPage(&answers); err != nil {
			return nil, mapWizardErr(err)
		}
	}

	cfg := buildWizardConfig(answers)

	confirmed := false
	summary := buildWizardSummary(projectName, cfg)
	if err := runConfirmPage(summary, &confirmed); err != nil {
		return nil, mapWizardErr(err)
	}
	if !confirmed {
		return nil, ErrWizardCancelled
	}

	return cfg, nil
}

// runJobOptionsPage collects the [job] concurrency/retry settings.
func runJobOptionsPage(answers *wizardAnswers) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max parallel items (1-64):").
				Description("How many items the map phase works on at once.").
				Value(&answers.maxParallel).
				Validate(validateRange(1, 64)),
			huh.NewInput().
				Title("Max retries per item (0-10):").
				Description("Retries before a failing item is dead-lettered.").
				Value(&answers.maxRetries).
				Validate(validateRange(0, 10)),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runAgentSelectPage lets the operator pick which AI agents to configure a
// [agents.<name>] section for. None selected is valid -- attempt steps then
// have nothing to run against until mrctl.toml is edited by hand.
func runAgentSelectPage(answers *wizardAnswers) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Configure agents for attempt steps:").
				Description("Space to toggle. Leave empty to skip -- attempt steps will fail until configured.").
				Options(
					huh.NewOption("claude", "claude"),
					huh.NewOption("codex", "codex"),
					huh.NewOption("gemini", "gemini"),
				).
				Value(&answers.agentNames),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runAgentModelPage collects a single shared model string applied to every
// selected agent -- good enough for a scaffold; per-agent tuning happens by
// hand-editing mrctl.toml afterwards.
func runAgentModelPage(answers *wizardAnswers) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model (applied to every selected agent):").
				Description("Leave blank to use each agent CLI's own default.").
				Value(&answers.agentModel),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runConfirmPage shows a final summary and asks for confirmation before the
// scaffold is written.
func runConfirmPage(summary string, confirmed *bool) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write this configuration?").
				Description(summary).
				Affirmative("Write Files").
				Negative("Cancel").
				Value(confirmed),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// buildWizardConfig turns the collected answers into a *config.Config
// fragment: only the fields the wizard actually asked about are populated.
// writeWizardConfig copies those fields onto config.NewDefaults() and
// replaces the rendered mrctl.toml with the result, so every other setting
// takes its NewDefaults value, not the template's.
func buildWizardConfig(answers wizardAnswers) *config.Config {
	maxParallel, _ := strconv.Atoi(answers.maxParallel)
	maxRetries, _ := strconv.Atoi(answers.maxRetries)

	cfg := &config.Config{
		Job: config.JobConfig{
			MaxParallel: maxParallel,
			MaxRetries:  maxRetries,
		},
	}

	if len(answers.agentNames) > 0 {
		cfg.Agents = make(map[string]agent.AgentConfig, len(answers.agentNames))
		for _, name := range answers.agentNames {
			cfg.Agents[name] = agent.AgentConfig{Command: name, Model: answers.agentModel}
		}
	}

	return cfg
}

// buildWizardSummary returns a human-readable summary of the wizard
// selections suitable for display on the confirmation page.
func buildWizardSummary(projectName string, cfg *config.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", projectName)
	fmt.Fprintf(&sb, "job.max_parallel = %d\n", cfg.Job.MaxParallel)
	fmt.Fprintf(&sb, "job.max_retries = %d\n", cfg.Job.MaxRetries)
	if len(cfg.Agents) == 0 {
		sb.WriteString("agents: none configured\n")
		return sb.String()
	}
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	fmt.Fprintf(&sb, "agents: %s\n", strings.Join(names, ", "))
	return sb.String()
}

// mapWizardErr translates huh's user-abort sentinel into ErrWizardCancelled
// and wraps any other error.
func mapWizardErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrWizardCancelled
	}
	return fmt.Errorf("wizard: %w", err)
}

// validateRange returns a huh input validator that accepts only integers in
// [min, max].
func validateRange(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("must be a number")
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}
