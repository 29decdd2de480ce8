// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/JuliusBairaktaris/photosweep/internal/sweep"
)

// Reporter defines the interface for writing a sweep report to an output.
type Reporter interface {
	// Write serializes a single run report.
	Write(rep *sweep.Report) error
	// Close finalizes the report and releases the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer with a no-op Close, used for stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format writing to outputPath.
// "-" and "stdout" write to standard output.
func New(format, outputPath string, logger *zap.Logger) (Reporter, error) {
	var writer io.WriteCloser
	isStdout := outputPath == "-" || outputPath == "stdout"

	if isStdout {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return &jsonReporter{w: writer, logger: logger.Named("reporter")}, nil
	case "text":
		return &textReporter{w: writer}, nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// jsonReporter writes the report envelope as indented JSON.
type jsonReporter struct {
	w      io.WriteCloser
	logger *zap.Logger
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (r *jsonReporter) Write(rep *sweep.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	r.logger.Debug("Report written", zap.String("run_id", rep.RunID))
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }

// textReporter writes a short human-readable summary.
type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(rep *sweep.Report) error {
	_, err := fmt.Fprintf(r.w,
		"run %s (%s)\nstate:    %s\ndeleted:  %d\nbatches:  %d\nstalls:   %d\nduration: %s\n",
		rep.RunID, rep.Policy, rep.State, rep.Deleted, rep.Batches, rep.Stalls, rep.Duration)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if rep.Error != "" {
		if _, err := fmt.Fprintf(r.w, "error:    %s\n", rep.Error); err != nil {
			return err
		}
	}
	return nil
}

func (r *textReporter) Close() error { return r.w.Close() }
