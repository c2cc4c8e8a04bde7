// Package csvparse tokenizes delimited text in bounded chunks.
//
// A payload is decoded to UTF-8, stripped of its byte order mark, newline
// normalized and then split into chunks of roughly [Options.ChunkSize] bytes.
// Each chunk is tokenized together with the [State] left behind by the
// previous one, so quotes, fields and rows that straddle a boundary come
// out exactly as if the whole payload had been tokenized in one pass.
//
// # Sessions
//
// [Parser.Start] launches a [Session]: one driver goroutine that owns the
// carried State and one worker goroutine that does the scanning. The two
// talk only through channels. A chunk request carries the chunk text and
// State by value, and the worker answers with progress messages followed by
// exactly one result or error. Chunk i+1 is not dispatched until the State
// from chunk i has arrived.
//
//	p := csvparse.NewParser(csvparse.Options{Delimiter: ';'})
//	s := p.Start(ctx, csvparse.ReaderInput(file), csvparse.Handlers{
//	    OnProgress: func(pr csvparse.Progress) { log.Println(pr.Percent) },
//	})
//	rows, err := s.Wait()
//
// # Cancellation
//
// The worker checks for cancellation every [Options.CancelCheckInterval]
// characters. A cancelled session returns [ErrParseCancelled] and no rows.
// Starting a new session on the same Parser cancels the previous one.
//
// # Progress
//
// Progress is sampled every [Options.ProgressInterval] characters and at each
// chunk end. Percentages never decrease within a session and the last report
// is always 100.
package csvparse
