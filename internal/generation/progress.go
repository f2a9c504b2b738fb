package generation

import "github.com/mbonchek/patterning-web-v2/internal/stream"

// ProgressStatus - состояние стадии в представлении прогресса одного слова.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressComplete   ProgressStatus = "complete"
	ProgressError      ProgressStatus = "error"
)

type ProgressStep struct {
	Name    string
	Label   string
	Status  ProgressStatus
	Content string
}

// Progress - список стадий для генерации одного слова.
type Progress struct {
	Word      string
	Steps     []ProgressStep
	Done      bool
	Err       string
	PatternID string
}

// NewProgress создает прогресс со всеми стадиями конвейера, кроме seed.
func NewProgress(word string) Progress {
	p := Progress{Word: word}
	for _, s := range Pipeline {
		if s.Name == "seed" {
			continue
		}
		p.Steps = append(p.Steps, ProgressStep{Name: s.Name, Label: s.Label, Status: ProgressPending})
	}
	return p
}

// ReduceProgress применяет событие к прогрессу. Стадии неизвестных имен добавляются в конец.
func ReduceProgress(p Progress, ev stream.Event) Progress {
	if p.Done || p.Err != "" {
		return p
	}
	steps := make([]ProgressStep, len(p.Steps))
	copy(steps, p.Steps)
	p.Steps = steps

	if ev.IsError() {
		p.Err = ev.ErrorMessage()
		for i := range p.Steps {
			if p.Steps[i].Status == ProgressInProgress {
				p.Steps[i].Status = ProgressError
			}
		}
		return p
	}

	switch ev.Kind() {
	case stream.KindStep, stream.KindProgress:
		if i := p.index(ev.Step); i >= 0 {
			p.Steps[i].Status = ProgressInProgress
		}
	case stream.KindSuccess:
		if i := p.index(ev.Step); i >= 0 {
			p.Steps[i].Status = ProgressComplete
			if content, ok := successContent(ev); ok {
				p.Steps[i].Content = content
			}
		}
	case stream.KindComplete:
		p.Done = true
		p.PatternID = patternIDFromEvent(ev)
		for i := range p.Steps {
			if p.Steps[i].Status == ProgressInProgress {
				p.Steps[i].Status = ProgressComplete
			}
		}
	}
	return p
}

func (p *Progress) index(name string) int {
	if name == "" {
		return -1
	}
	canonical := CanonicalStep(name)
	for i, s := range p.Steps {
		if s.Name == canonical {
			return i
		}
	}
	p.Steps = append(p.Steps, ProgressStep{Name: canonical, Label: StepLabel(name), Status: ProgressPending})
	return len(p.Steps) - 1
}

// Completed returns how many steps are complete.
func (p Progress) Completed() int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == ProgressComplete {
			n++
		}
	}
	return n
}
