package domain

// ChangeSync is broadcast once after a bulk reconciliation that wrote
// anything; single-task operations broadcast their operation kind instead.
const ChangeSync = "sync"

// ChangeEvent is the typed notification pushed to live subscribers after
// every invalidating mutation. Payload carries the subject task id when the
// change concerns a single task.
type ChangeEvent struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload,omitempty"`
}

// BoardTask is one task as served on the board: the stored row plus its
// comments, oldest first.
type BoardTask struct {
	Task
	Comments []Comment `json:"comments,omitempty"`
}

// BoardView is the read-model snapshot served to clients and held by the
// read cache: the ordered column set plus every task.
type BoardView struct {
	Columns []string    `json:"columns"`
	Tasks   []BoardTask `json:"tasks"`
}

// AssembleBoard groups comments under their tasks and pairs the result with
// the column set.
func AssembleBoard(columns []string, tasks []Task, comments []Comment) BoardView {
	byTask := make(map[string][]Comment, len(tasks))
	for _, c := range comments {
		byTask[c.TaskID] = append(byTask[c.TaskID], c)
	}
	view := BoardView{Columns: columns, Tasks: make([]BoardTask, 0, len(tasks))}
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, BoardTask{Task: t, Comments: byTask[t.ID]})
	}
	return view
}
