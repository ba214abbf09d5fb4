package domain

// DiffTask compares a submitted whole-task snapshot against the stored row
// and returns a patch holding only the fields that differ. Identifiers and
// server-owned timestamps never participate.
func DiffTask(stored, submitted Task) TaskPatch {
	var p TaskPatch
	if submitted.Title != stored.Title {
		p.Title = &submitted.Title
	}
	if submitted.Description != stored.Description {
		p.Description = &submitted.Description
	}
	if submitted.SuccessCriteria != stored.SuccessCriteria {
		p.SuccessCriteria = &submitted.SuccessCriteria
	}
	if submitted.UserJourney != stored.UserJourney {
		p.UserJourney = &submitted.UserJourney
	}
	if submitted.Column != stored.Column {
		p.Column = &submitted.Column
	}
	if submitted.Priority != stored.Priority {
		p.Priority = &submitted.Priority
	}
	if submitted.Kind != stored.Kind {
		p.Kind = &submitted.Kind
	}
	if submitted.RequiresEnvironment != stored.RequiresEnvironment {
		p.RequiresEnvironment = &submitted.RequiresEnvironment
	}
	if submitted.Archived != stored.Archived {
		p.Archived = &submitted.Archived
	}
	if submitted.Project != stored.Project {
		p.Project = &submitted.Project
	}
	if submitted.Image != stored.Image {
		p.Image = &submitted.Image
	}
	return p
}

// MissingComments returns the submitted comments whose (author, text) key is
// absent from the stored set, preserving submission order. Duplicate keys
// within the submission itself collapse to one.
func MissingComments(stored []Comment, submitted []CommentSnapshot) []CommentSnapshot {
	seen := make(map[CommentKey]struct{}, len(stored))
	for _, c := range stored {
		seen[c.Key()] = struct{}{}
	}
	var missing []CommentSnapshot
	for _, s := range submitted {
		key := CommentKey{Author: s.Author, Text: s.Text}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		missing = append(missing, s)
	}
	return missing
}
