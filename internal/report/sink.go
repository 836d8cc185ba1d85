package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Sink receives results.
type Sink interface {
	Write(ctx context.Context, r Result) error
}

// TextSink prints the display block followed by the result line.
type TextSink struct {
	W io.Writer
}

// Write implements Sink.
func (s TextSink) Write(_ context.Context, r Result) error {
	tw := tabwriter.NewWriter(s.W, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "Closest building to %s:\n", r.Landmark.Name)
	for _, f := range r.Display() {
		fmt.Fprintf(tw, "  %s:\t%s\n", f.Label, f.Value)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: write text")
	}
	if _, err := fmt.Fprintf(s.W, "\n%s\n", ResultLine(r)); err != nil {
		return eris.Wrap(err, "report: write text")
	}
	return nil
}

// ResultLine is the final line printed for a result.
func ResultLine(r Result) string {
	return fmt.Sprintf("RESULT, THE FULL PLUS CODE OF THE BUILDING CLOSEST TO %s: %s",
		strings.ToUpper(r.Landmark.Name), r.Building.PlusCode)
}

// JSONSink writes one indented JSON document per result.
type JSONSink struct {
	W io.Writer
}

// Write implements Sink.
func (s JSONSink) Write(_ context.Context, r Result) error {
	enc := json.NewEncoder(s.W)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

// YAMLSink writes one YAML document per result.
type YAMLSink struct {
	W io.Writer
}

// Write implements Sink.
func (s YAMLSink) Write(_ context.Context, r Result) error {
	enc := yaml.NewEncoder(s.W)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return nil
}

// NewSink returns the sink for an output format: text, json or yaml.
func NewSink(format string, w io.Writer) (Sink, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return TextSink{W: w}, nil
	case "json":
		return JSONSink{W: w}, nil
	case "yaml", "yml":
		return YAMLSink{W: w}, nil
	default:
		return nil, eris.Errorf("report: unknown format %q (want text, json or yaml)", format)
	}
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, r Result) error {
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// ResultSaver persists results.
type ResultSaver interface {
	SaveResult(ctx context.Context, r Result) error
}

// StoreSink saves results through a ResultSaver.
type StoreSink struct {
	Saver ResultSaver
}

// Write implements Sink.
func (s StoreSink) Write(ctx context.Context, r Result) error {
	if err := s.Saver.SaveResult(ctx, r); err != nil {
		return eris.Wrap(err, "report: save result")
	}
	zap.L().Info("result saved",
		zap.String("component", "report"),
		zap.String("id", r.ID.String()),
		zap.String("plus_code", r.Building.PlusCode),
	)
	return nil
}
