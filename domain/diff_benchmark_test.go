package domain

import (
	"fmt"
	"testing"
)

func BenchmarkDiffTask(b *testing.B) {
	stored := Task{
		ID:              "task-1",
		Title:           "Ship the release",
		Description:     "Cut the tag, build artifacts, publish notes",
		SuccessCriteria: "Release page is live",
		UserJourney:     "Maintainer publishes a release",
		Column:          "in-progress",
		Priority:        "high",
		Kind:            "single",
		Project:         "launch",
	}

	b.Run("Unchanged", func(b *testing.B) {
		submitted := stored

		b.ReportAllocs()
		for b.Loop() {
			if p := DiffTask(stored, submitted); !p.IsEmpty() {
				b.Fatal("expected empty patch for identical tasks")
			}
		}
	})

	b.Run("ColumnMoved", func(b *testing.B) {
		submitted := stored
		submitted.Column = "done"

		b.ReportAllocs()
		for b.Loop() {
			p := DiffTask(stored, submitted)
			if p.Column == nil || *p.Column != "done" {
				b.Fatal("expected patch with the moved column")
			}
		}
	})

	b.Run("EveryField", func(b *testing.B) {
		submitted := Task{
			ID:                  stored.ID,
			Title:               "Ship the hotfix",
			Description:         "Backport and publish",
			SuccessCriteria:     "Hotfix tag is live",
			UserJourney:         "Maintainer publishes a hotfix",
			Column:              "done",
			Priority:            "low",
			Kind:                "recurring",
			RequiresEnvironment: true,
			Archived:            true,
			Project:             "maintenance",
			Image:               "img-1",
		}

		b.ReportAllocs()
		for b.Loop() {
			if p := DiffTask(stored, submitted); p.IsEmpty() {
				b.Fatal("expected populated patch")
			}
		}
	})
}

func BenchmarkMissingComments(b *testing.B) {
	sizes := []int{4, 64}

	for _, n := range sizes {
		stored := make([]Comment, n)
		submitted := make([]CommentSnapshot, n+1)
		for i := 0; i < n; i++ {
			stored[i] = Comment{Author: "agent", Text: fmt.Sprintf("note %d", i)}
			submitted[i] = CommentSnapshot{Author: "agent", Text: fmt.Sprintf("note %d", i)}
		}
		submitted[n] = CommentSnapshot{Author: "operator", Text: "fresh note"}

		b.Run(fmt.Sprintf("Stored%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				missing := MissingComments(stored, submitted)
				if len(missing) != 1 {
					b.Fatalf("expected one missing comment, got %d", len(missing))
				}
			}
		})
	}
}
