package train

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/program"
	"github.com/hupe1980/symflow/saving"
)

// ProgramCheckpointOptions configure checkpoint persistence.
type ProgramCheckpointOptions struct {
	// Monitor is the log key watched for improvement. Default "val_reward".
	Monitor string
	// Mode decides what counts as improvement of the monitored value: "max"
	// or "min". Default "max".
	Mode string
	// SaveBestOnly skips epochs that do not improve the monitored value.
	SaveBestOnly bool
	// SaveVariablesOnly saves just the variable state instead of the whole
	// program document.
	SaveVariablesOnly bool
	// Logger is the logger to use. Defaults to NoOpLogger.
	Logger logging.Logger
}

// ProgramCheckpoint saves the trained program, or just its variables, at
// epoch end, optionally only when the monitored value improves.
type ProgramCheckpoint struct {
	filepath          string
	monitor           string
	mode              string
	saveBestOnly      bool
	saveVariablesOnly bool
	logger            logging.Logger

	p    *program.Program
	best float64
}

// NewProgramCheckpoint creates the checkpoint callback writing to the given
// path. The path must end in .json, matching the persistence formats.
func NewProgramCheckpoint(filepath string, optFns ...func(o *ProgramCheckpointOptions)) (*ProgramCheckpoint, error) {
	opts := ProgramCheckpointOptions{
		Monitor: "val_reward",
		Mode:    "max",
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Mode != "max" && opts.Mode != "min" {
		return nil, fmt.Errorf("train: checkpoint mode must be \"max\" or \"min\", got %q", opts.Mode)
	}

	best := math.Inf(-1)
	if opts.Mode == "min" {
		best = math.Inf(1)
	}

	return &ProgramCheckpoint{
		filepath:          filepath,
		monitor:           opts.Monitor,
		mode:              opts.Mode,
		saveBestOnly:      opts.SaveBestOnly,
		saveVariablesOnly: opts.SaveVariablesOnly,
		logger:            opts.Logger,
		best:              best,
	}, nil
}

// OnTrainBegin captures the program being trained.
func (c *ProgramCheckpoint) OnTrainBegin(p *program.Program) { c.p = p }

// OnEpochEnd persists the program when the monitored value allows it. A
// missing monitor key logs a warning and skips the save; a failing save
// stops training.
func (c *ProgramCheckpoint) OnEpochEnd(epoch int, logs map[string]float64) error {
	if c.p == nil {
		c.logger.Warn("checkpoint.no_program", "path", c.filepath)
		return nil
	}

	value, ok := logs[c.monitor]
	if !ok {
		c.logger.Warn("checkpoint.monitor_missing", "monitor", c.monitor, "epoch", epoch)
		return nil
	}

	improved := value > c.best
	if c.mode == "min" {
		improved = value < c.best
	}

	if c.saveBestOnly && !improved {
		c.logger.Debug("checkpoint.skipped",
			"monitor", c.monitor,
			"value", value,
			"best", c.best,
			"epoch", epoch,
		)
		return nil
	}

	if improved {
		c.best = value
	}

	if err := c.save(); err != nil {
		return fmt.Errorf("train: checkpoint %s: %w", c.filepath, err)
	}

	c.logger.Info("checkpoint.saved",
		"path", c.filepath,
		"monitor", c.monitor,
		"value", value,
		"epoch", epoch,
	)

	return nil
}

// OnTrainEnd implements the callback contract.
func (c *ProgramCheckpoint) OnTrainEnd(*program.Program) {}

func (c *ProgramCheckpoint) save() error {
	if c.saveVariablesOnly {
		return saving.SaveVariables(c.p, c.filepath)
	}
	return saving.SaveProgram(c.p, c.filepath)
}

// CSVLoggerOptions configure the CSV training log.
type CSVLoggerOptions struct {
	// Append adds rows to an existing file instead of truncating it.
	Append bool
	// Separator is the field separator. Default ','.
	Separator rune
}

// CSVLogger streams epoch logs to a CSV file, one row per epoch. The column
// set is fixed by the keys of the first epoch.
type CSVLogger struct {
	filepath  string
	appending bool
	separator rune

	err        error
	file       *os.File
	writer     *csv.Writer
	keys       []string
	needHeader bool
}

// NewCSVLogger creates the CSV callback writing to the given path.
func NewCSVLogger(filepath string, optFns ...func(o *CSVLoggerOptions)) *CSVLogger {
	opts := CSVLoggerOptions{Separator: ','}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &CSVLogger{filepath: filepath, appending: opts.Append, separator: opts.Separator}
}

// OnTrainBegin opens the log file. Open failures surface at the first epoch
// end, since this hook cannot return an error.
func (c *CSVLogger) OnTrainBegin(*program.Program) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if c.appending {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	file, err := os.OpenFile(c.filepath, flags, 0o644)
	if err != nil {
		c.err = fmt.Errorf("train: csv logger %s: %w", c.filepath, err)
		return
	}

	c.err = nil
	c.file = file
	c.writer = csv.NewWriter(file)
	c.writer.Comma = c.separator
	c.keys = nil

	c.needHeader = true
	if info, err := file.Stat(); err == nil && info.Size() > 0 {
		c.needHeader = false
	}
}

// OnEpochEnd appends one row of epoch measurements.
func (c *CSVLogger) OnEpochEnd(epoch int, logs map[string]float64) error {
	if c.err != nil {
		return c.err
	}
	if c.writer == nil {
		return nil
	}

	if c.keys == nil {
		c.keys = make([]string, 0, len(logs))
		for k := range logs {
			c.keys = append(c.keys, k)
		}
		sort.Strings(c.keys)

		if c.needHeader {
			if err := c.writer.Write(append([]string{"epoch"}, c.keys...)); err != nil {
				return fmt.Errorf("train: csv logger %s: %w", c.filepath, err)
			}
		}
	}

	row := make([]string, 0, len(c.keys)+1)
	row = append(row, strconv.Itoa(epoch))
	for _, k := range c.keys {
		row = append(row, strconv.FormatFloat(logs[k], 'g', -1, 64))
	}

	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("train: csv logger %s: %w", c.filepath, err)
	}

	c.writer.Flush()

	return c.writer.Error()
}

// OnTrainEnd flushes and closes the log file.
func (c *CSVLogger) OnTrainEnd(*program.Program) {
	if c.writer != nil {
		c.writer.Flush()
	}
	if c.file != nil {
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}
