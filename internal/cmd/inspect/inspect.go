package inspectcmd

import (
	"fmt"
	"io"

	"github.com/sdrees/vernemq/internal/msgstore"
	pebblestore "github.com/sdrees/vernemq/internal/storage/pebble"
)

type Options struct {
	// Dir is one bucket's database directory, e.g. <storeDir>/3.
	Dir string
	// Verbose prints every decoded record instead of just the summary.
	Verbose bool
}

// Summary aggregates what Run saw in one bucket.
type Summary struct {
	Indexes  int
	Payloads int
	Unknown  int
	// Subscribers counts distinct subscribers seen in the index range.
	Subscribers int
}

// Run opens a single bucket database offline and reports its contents. The
// bucket must not be held by a running node.
func Run(w io.Writer, opts Options) (Summary, error) {
	var sum Summary
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: opts.Dir,
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		return sum, fmt.Errorf("open bucket %s: %w", opts.Dir, err)
	}
	defer db.Close()

	it, err := db.NewIter(nil)
	if err != nil {
		return sum, err
	}
	defer it.Close()

	subs := make(map[string]struct{})
	for it.First(); it.Valid(); it.Next() {
		key := it.Key()
		switch msgstore.KeyKind(key) {
		case "idx":
			sum.Indexes++
			sub, ref, err := msgstore.DecodeIdxKey(key)
			if err != nil {
				fmt.Fprintf(w, "idx <malformed key>: %v\n", err)
				continue
			}
			subs[sub.String()] = struct{}{}
			if !opts.Verbose {
				continue
			}
			val, err := msgstore.DecodeIdxValue(it.Value())
			if err != nil {
				fmt.Fprintf(w, "idx sub=%s ref=%s <malformed value>: %v\n", sub, ref, err)
				continue
			}
			fmt.Fprintf(w, "idx sub=%s ref=%s ts=%s dup=%t qos=%d\n",
				sub, ref, val.Timestamp.Time().UTC().Format("2006-01-02T15:04:05.000000Z"),
				val.Dup, val.QoS)
		case "msg":
			sum.Payloads++
			ref, mountpoint, err := msgstore.DecodeMsgKey(key)
			if err != nil {
				fmt.Fprintf(w, "msg <malformed key>: %v\n", err)
				continue
			}
			if !opts.Verbose {
				continue
			}
			val, err := msgstore.DecodeMsgValue(it.Value())
			if err != nil {
				fmt.Fprintf(w, "msg ref=%s mp=%q <malformed value>: %v\n", ref, mountpoint, err)
				continue
			}
			fmt.Fprintf(w, "msg ref=%s mp=%q routing=%v payload=%dB\n",
				ref, mountpoint, val.RoutingKey, len(val.Payload))
		default:
			sum.Unknown++
			if opts.Verbose {
				fmt.Fprintf(w, "??? key=%q\n", key)
			}
		}
	}
	if err := it.Error(); err != nil {
		return sum, err
	}
	sum.Subscribers = len(subs)

	fmt.Fprintf(w, "indexes=%d payloads=%d subscribers=%d unknown=%d\n",
		sum.Indexes, sum.Payloads, sum.Subscribers, sum.Unknown)
	return sum, nil
}
