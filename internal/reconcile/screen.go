package reconcile

import (
	"sort"
	"strings"

	"github.com/litcat/litrec/internal/changes"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/submission"
)

// screened is a record after the batch-level checks that need no store
// access.
type screened struct {
	rec         *submission.Record
	fingerprint string
	outcome     Outcome // set when the record is settled without touching the store
	err         error
}

// screen runs the checks that look at the batch as a whole: malformed
// records, duplicate prefixes inside a record, and identifiers claimed by
// more than one record. Identical duplicates are kept once; conflicting
// claimants are all rejected. It also returns every identifier key the batch
// mentions, for the out-of-corpus sweep.
func screen(records []submission.Record) ([]screened, map[string]bool) {
	out := make([]screened, len(records))
	mentioned := make(map[string]bool)
	claims := make(map[string][]int)

	for i := range records {
		rec := &records[i]
		s := &out[i]
		s.rec = rec

		if err := rec.Validate(); err != nil {
			s.outcome, s.err = OutcomeRejected, err
			continue
		}
		fp, err := changes.Fingerprint(rec)
		if err != nil {
			s.outcome, s.err = OutcomeFailed, err
			continue
		}
		s.fingerprint = fp

		for _, id := range rec.AllIdentifiers() {
			mentioned[id.Key()] = true
			claims[id.Key()] = append(claims[id.Key()], i)
		}

		if dupes := rec.DuplicatePrefixes(); len(dupes) > 0 {
			s.outcome = OutcomeRejected
			s.err = conflict.New(conflict.PrefixConflictWithinSubmission, rec.Primary.Curie(),
				"record carries several identifiers for %s", strings.Join(dupes, ", "))
		}
	}

	keys := make([]string, 0, len(claims))
	for k, idxs := range claims {
		if len(idxs) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		idxs := claims[k]
		fps := make(map[string]bool)
		for _, i := range idxs {
			fps[out[i].fingerprint] = true
		}
		if len(fps) == 1 {
			for _, i := range idxs[1:] {
				if out[i].outcome == "" {
					out[i].outcome = OutcomeDuplicate
				}
			}
			continue
		}

		subjects := make([]string, 0, len(idxs))
		for _, i := range idxs {
			subjects = append(subjects, out[i].rec.Primary.Curie())
		}
		for _, i := range idxs {
			if out[i].outcome == OutcomeRejected {
				continue
			}
			out[i].outcome = OutcomeRejected
			out[i].err = conflict.New(conflict.PrefixConflictWithinSubmission, out[i].rec.Primary.Curie(),
				"identifier %s is claimed by %d differing records: %s", k, len(idxs), strings.Join(subjects, ", "))
		}
	}
	return out, mentioned
}
