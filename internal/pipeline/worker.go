package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/tocgest/internal/document"
)

// OpenFunc validates uploaded bytes into a Document.
type OpenFunc func(data []byte, name string) (*document.Document, error)

// Worker processes a single queued job.
type Worker struct {
	pipeline *Pipeline
	open     OpenFunc
	log      *slog.Logger
}

func NewWorker(p *Pipeline, open OpenFunc, log *slog.Logger) *Worker {
	if open == nil {
		open = document.Open
	}
	return &Worker{pipeline: p, open: open, log: log}
}

// Process opens the uploaded PDF and runs the pipeline over it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Open
	job.SetStatus(StatusOpening, "opening")
	doc, err := w.open(job.FileData(), job.Filename)
	if err != nil {
		log.Error("open failed", "error", err)
		job.AddError(fmt.Sprintf("open: %s", err))
		job.ReleaseFile()
		job.SetStatus(StatusFailed, "opening")
		return
	}
	defer doc.Close()

	// Phase 2: Extract, locate, parse
	job.SetTotalPages(w.pipeline.Range(doc).Len())
	job.SetStatus(StatusExtracting, "extracting")
	log.Info("extracting", "pages", doc.PageCount, "bytes", doc.Size)

	res, err := w.pipeline.RunWithProgress(ctx, doc, job.RecordPage)
	if err != nil {
		log.Error("pipeline failed", "error", err)
		job.AddError(err.Error())
		job.ReleaseFile()
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	for _, p := range res.Pages {
		if p.Method == document.MethodFailed {
			job.AddError(fmt.Sprintf("page %d: %s", p.Index+1, p.Err))
		}
	}
	if res.TimedOut {
		job.AddError("extraction timed out, result is partial")
	}

	job.SetResult(res)
	if res.Status == ResultNoTOC {
		job.SetStatus(StatusNoTOC, "done")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}
