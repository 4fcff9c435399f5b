package runner

import (
	"context"
	"sync"
)

// evaluateEntriesParallel — пул воркеров с жёстким лимитом параллелизма.
// Два воркера на один символ невозможны: per-symbol guard в менеджере.
func (r *Runner) evaluateEntriesParallel(ctx context.Context, symbols []string) {
	sem := make(chan struct{}, r.cfg.Trading.ParallelEntries)
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.evaluateEntry(ctx, sym)
		}(symbol)
	}

	// цикл не считается завершённым, пока все входы не отработали
	wg.Wait()
}
