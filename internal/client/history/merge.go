package history

import "github.com/dmitrijs2005/cloudchat/internal/client/models"

// IDSet is a set of message ids.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Merge combines the local view with the remote document.
//
//   - A message present remotely is taken verbatim from the remote side and
//     marked Confirmed.
//   - A local message absent remotely survives if it is not StatusSuccess, or
//     if it is StatusSuccess but was never confirmed (not uploaded yet).
//     Confirmed messages that vanished were deleted by another device.
//   - Ids in exclude never survive.
//
// The result has unique ids and is stable-sorted by timestamp. Merge is
// idempotent: Merge(Merge(l, r, x), r, x) equals Merge(l, r, x).
func Merge(local, remote []models.Message, exclude IDSet) []models.Message {
	out := make([]models.Message, 0, len(local)+len(remote))
	seen := make(IDSet, len(local)+len(remote))

	for _, m := range remote {
		if exclude.Has(m.ID) || seen.Has(m.ID) {
			continue
		}
		seen[m.ID] = struct{}{}
		m.Confirmed = true
		out = append(out, m)
	}

	for _, m := range local {
		if exclude.Has(m.ID) || seen.Has(m.ID) {
			continue
		}
		if m.Status == models.StatusSuccess && m.Confirmed {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	models.SortByTimestamp(out)
	return out
}

// BuildRemote computes the document to upload: remote minus exclude, plus
// local successful messages that are not yet in the remote document and
// were never confirmed. Local-only fields are stripped.
func BuildRemote(local, remote []models.Message, exclude IDSet) []models.Message {
	out := make([]models.Message, 0, len(local)+len(remote))
	seen := make(IDSet, len(local)+len(remote))

	for _, m := range remote {
		if exclude.Has(m.ID) || seen.Has(m.ID) {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m.ForRemote())
	}

	for _, m := range local {
		if m.Status != models.StatusSuccess || m.Confirmed {
			continue
		}
		if exclude.Has(m.ID) || seen.Has(m.ID) {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m.ForRemote())
	}

	models.SortByTimestamp(out)
	return out
}

// Unconfirmed returns a copy of msgs with Confirmed cleared, so BuildRemote
// treats every successful message as not yet uploaded.
func Unconfirmed(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		out[i].Confirmed = false
	}
	return out
}

// MarkOutgoing sets IsOutgoing on every message from username.
func MarkOutgoing(msgs []models.Message, username string) {
	for i := range msgs {
		msgs[i].IsOutgoing = msgs[i].Sender == username
	}
}

// IDs returns the ids of msgs as a set.
func IDs(msgs []models.Message) IDSet {
	s := make(IDSet, len(msgs))
	for _, m := range msgs {
		s[m.ID] = struct{}{}
	}
	return s
}
