package models

import "fmt"

// ManageAction - разрушительное действие над паттерном.
type ManageAction string

const (
	ActionDeleteAll    ManageAction = "delete_all"
	ActionClearLayers  ManageAction = "clear_layers"
	ActionClearVoicing ManageAction = "clear_voicing"
	ActionClearEssence ManageAction = "clear_essence"
	ActionClearBrief   ManageAction = "clear_brief"
	ActionClearImage   ManageAction = "clear_image"
)

var manageActions = []ManageAction{
	ActionClearLayers, ActionClearVoicing, ActionClearEssence, ActionClearBrief, ActionClearImage, ActionDeleteAll,
}

// ParseManageAction validates an action name received from a form.
func ParseManageAction(s string) (ManageAction, error) {
	for _, a := range manageActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Field возвращает поле, которое очищает действие; пусто для delete_all.
func (a ManageAction) Field() string {
	switch a {
	case ActionClearLayers:
		return FieldLayers
	case ActionClearVoicing:
		return FieldVoicing
	case ActionClearEssence:
		return FieldEssence
	case ActionClearBrief:
		return FieldImageBrief
	case ActionClearImage:
		return FieldImage
	}
	return ""
}

func (a ManageAction) Label() string {
	if a == ActionDeleteAll {
		return "Delete pattern"
	}
	return "Clear " + FieldLabel(a.Field())
}

// Allowed сообщает, применимо ли действие к паттерну: очищать можно только заполненное поле.
func (a ManageAction) Allowed(p Pattern) bool {
	if a == ActionDeleteAll {
		return true
	}
	return p.HasField(a.Field())
}

// ManageOption - действие и его доступность для конкретного паттерна.
type ManageOption struct {
	Action  ManageAction
	Label   string
	Enabled bool
}

func ManageOptions(p Pattern) []ManageOption {
	out := make([]ManageOption, 0, len(manageActions))
	for _, a := range manageActions {
		out = append(out, ManageOption{Action: a, Label: a.Label(), Enabled: a.Allowed(p)})
	}
	return out
}
