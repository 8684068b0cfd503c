package history

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"taskvault/pkg/version"
)

// maxLineageWorkers caps concurrent chunk lookups in BatchLineage.
const maxLineageWorkers = 4

// BatchLineage resolves the lineage of every listed task from its head.
// Unknown tasks and tasks without a head resolve to "none". Ids are looked
// up in chunks; each task's result depends only on its own versions.
func (e *Engine) BatchLineage(ctx context.Context, taskIDs []string) (_ map[string]version.Lineage, err error) {
	ctx, done := e.begin(ctx, "BatchLineage", "")
	defer done(&err)

	ids := make([]string, 0, len(taskIDs))
	seen := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var mu sync.Mutex
	result := make(map[string]version.Lineage, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLineageWorkers)
	for _, chunk := range chunks(ids, e.chunkSize) {
		g.Go(func() error {
			heads, err := e.tasks.Heads(gctx, chunk)
			if err != nil {
				return err
			}
			links, err := e.versions.Links(gctx, chunk)
			if err != nil {
				return err
			}

			byTask := make(map[string]map[string]version.Link, len(chunk))
			for _, l := range links {
				m, ok := byTask[l.TaskID]
				if !ok {
					m = make(map[string]version.Link)
					byTask[l.TaskID] = m
				}
				m[l.ID] = l
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range chunk {
				result[id] = version.Resolve(byTask[id], heads[id])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
