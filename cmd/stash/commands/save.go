package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/stash/internal/orchestrator"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/internal/systems"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
	"github.com/spf13/cobra"
)

var (
	saveSystems []string
	saveForce   bool
	saveScene   string
)

var saveCmd = &cobra.Command{
	Use:   "save SLOT",
	Short: "Save system blobs to a slot",
	Long: `Run a save through the orchestrator with one participant per --system.

Each --system NAME=BLOB registers a participant that answers the save request
with BLOB. The orchestrator aggregates the responses into a save package and
writes it to SLOT.

An occupied slot is refused unless --force is given; the replaced save is
kept as the slot's backup (see: stash restore).

Examples:
  stash save 2 --system Inventory="A=1;B=2" --system Flags='{"bool_keys":[]}'
  stash save 2 --system Inventory="A=3" --force`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringArrayVarP(&saveSystems, "system", "s", nil, "Participant as NAME=BLOB (repeatable)")
	saveCmd.Flags().BoolVar(&saveForce, "force", false, "Replace an existing save, keeping it as backup")
	saveCmd.Flags().StringVar(&saveScene, "scene", "", "Scene name recorded in the package")
	rootCmd.AddCommand(saveCmd)
}

// blobSystem is a participant that always answers with the same blob.
type blobSystem struct {
	name string
	blob string
}

func (b *blobSystem) SystemName() string            { return b.name }
func (b *blobSystem) CaptureState() (string, error) { return b.blob, nil }
func (b *blobSystem) RestoreState(string) error     { return nil }

// parseSystems splits NAME=BLOB flags. The blob may contain '='.
func parseSystems(specs []string) ([]*blobSystem, error) {
	seen := make(map[string]bool, len(specs))
	out := make([]*blobSystem, 0, len(specs))
	for _, spec := range specs {
		name, blob, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --system %q (expected NAME=BLOB)", spec)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate --system %q", name)
		}
		seen[name] = true
		out = append(out, &blobSystem{name: name, blob: blob})
	}
	return out, nil
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	slotNum, err := parseSlot(args[0])
	if err != nil {
		return err
	}

	blobs, err := parseSystems(saveSystems)
	if err != nil {
		return printer.Error("invalid --system flag", err.Error(), []string{"Example: --system Inventory=\"A=1;B=2\""})
	}
	if len(blobs) == 0 {
		return printer.Error(
			"nothing to save",
			"At least one --system NAME=BLOB is required.",
			[]string{"Example:\n  stash save 1 --system Inventory=\"A=1\""},
		)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if saveScene != "" {
		s.orch.ChangeScene(saveScene)
	}

	for _, b := range blobs {
		p, err := systems.Attach(s.bus, s.orch, b)
		if err != nil {
			return fmt.Errorf("failed to attach %s: %w", b.name, err)
		}
		defer p.Detach()
	}

	// Completions may be published before StartSave returns
	completions := make(chan events.SaveComplete, 8)
	unsubscribe := bus.Subscribe(s.bus, func(e events.SaveComplete) {
		select {
		case completions <- e:
		default:
		}
	})
	defer unsubscribe()

	var opts []orchestrator.SaveOption
	if saveForce {
		opts = append(opts, orchestrator.WithOverwrite())
	}

	operationID, startErr := s.orch.StartSave(ctx, slotNum, opts...)

	complete, err := awaitSave(completions, operationID, s.cfg.Orchestrator.TimeoutDuration()+2*time.Second)
	if err != nil {
		if startErr != nil {
			err = startErr
		}
		return printer.Error(fmt.Sprintf("save to slot %d failed", slotNum), err.Error(), nil)
	}

	if !complete.Success {
		suggestions := []string{}
		if errors.Is(startErr, slot.ErrSlotOccupied) {
			suggestions = append(suggestions, fmt.Sprintf("Replace it (the current save becomes the backup):\n  stash save %d --force ...", slotNum))
		}
		return printer.ErrorWithContext(
			fmt.Sprintf("save to slot %d failed", slotNum),
			complete.ErrorMessage,
			map[string]string{
				"Operation":     complete.OperationID,
				"Systems saved": fmt.Sprintf("%d", complete.SystemsSaved),
			},
			suggestions,
		)
	}

	printer.Success("Saved %d systems to slot %d\n", complete.SystemsSaved, slotNum)
	printer.Info("  operation: %s\n", complete.OperationID)
	printer.Info("  location:  %s\n", s.where())
	return nil
}

// awaitSave waits for the completion of operationID.
func awaitSave(completions <-chan events.SaveComplete, operationID string, timeout time.Duration) (events.SaveComplete, error) {
	timeoutCh := time.After(timeout)
	for {
		select {
		case e := <-completions:
			if e.OperationID == operationID {
				return e, nil
			}
		case <-timeoutCh:
			return events.SaveComplete{}, fmt.Errorf("no completion for operation %s after %v", operationID, timeout)
		}
	}
}
