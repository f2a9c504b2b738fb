package generation

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mbonchek/patterning-web-v2/internal/stream"
)

// Reduce применяет событие потока к записи журнала и возвращает новую запись.
// Исходная запись не изменяется.
func Reduce(e LogEntry, ev stream.Event) LogEntry {
	return ReduceAt(e, ev, time.Now())
}

// ReduceAt - Reduce с явным временем получения события.
func ReduceAt(e LogEntry, ev stream.Event, at time.Time) LogEntry {
	if e.Status.Terminal() {
		return e
	}
	if e.Status == StatusPending {
		e = Start(e, at)
	}

	if ev.IsError() {
		return Fail(e, ev.ErrorMessage(), at)
	}

	switch ev.Kind() {
	case stream.KindStep, stream.KindProgress:
		e.Step = ev.Step
		if ev.Message != "" {
			e.Message = ev.Message
		} else if ev.Step != "" {
			e.Message = "Running " + StepLabel(ev.Step)
		}

	case stream.KindStepDetail:
		e.StepDetails = append(slices.Clip(e.StepDetails), stepDetailFromEvent(ev))

	case stream.KindSaved:
		e.SavedEvents = append(slices.Clip(e.SavedEvents), savedFromEvent(ev))

	case stream.KindHTTPTrace:
		e.HTTPTraces = applyTrace(e.HTTPTraces, traceFromEvent(ev, e.Step, at))

	case stream.KindSuccess:
		step := ev.Step
		if step == "" {
			step = e.Step
		}
		if step != "" && !slices.Contains(e.CompletedSteps, step) {
			e.CompletedSteps = append(slices.Clip(e.CompletedSteps), step)
		}
		if content, ok := successContent(ev); ok && step != "" {
			result := make(map[string]string, len(e.Result)+1)
			for k, v := range e.Result {
				result[k] = v
			}
			result[step] = content
			e.Result = result
		}
		if step != "" {
			e.Message = "Completed " + step
		}

	case stream.KindComplete:
		e.Status = StatusSuccess
		e.Message = "Generation complete"
		e.PatternID = patternIDFromEvent(ev)
		if len(ev.Data) > 0 {
			e.Data = ev.Data
		}
		e.FinishedAt = at
	}
	return e
}

// applyTrace добавляет запросную половину или сливает ответную с открытой трассой.
// Ответ с id ищется по id; без id сливается с последней добавленной трассой.
func applyTrace(traces []HTTPTrace, t HTTPTrace) []HTTPTrace {
	if t.Method != "" {
		return append(slices.Clip(traces), t)
	}
	if len(traces) == 0 {
		return traces
	}

	idx := -1
	if t.ID != "" {
		for i := len(traces) - 1; i >= 0; i-- {
			if traces[i].ID == t.ID {
				idx = i
				break
			}
		}
	} else {
		idx = len(traces) - 1
	}
	if idx < 0 {
		return traces
	}

	out := slices.Clone(traces)
	out[idx] = mergeTrace(out[idx], t)
	return out
}

func mergeTrace(dst, src HTTPTrace) HTTPTrace {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.Status != 0 {
		dst.Status = src.Status
	}
	if src.DurationMS != 0 {
		dst.DurationMS = src.DurationMS
	}
	if len(src.RequestHeaders) > 0 {
		dst.RequestHeaders = src.RequestHeaders
	}
	if len(src.RequestBody) > 0 {
		dst.RequestBody = src.RequestBody
	}
	if len(src.ResponseHeaders) > 0 {
		dst.ResponseHeaders = src.ResponseHeaders
	}
	if len(src.ResponseBody) > 0 {
		dst.ResponseBody = src.ResponseBody
	}
	if src.Error != "" {
		dst.Error = src.Error
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.InputTokens != 0 {
		dst.InputTokens = src.InputTokens
	}
	if src.OutputTokens != 0 {
		dst.OutputTokens = src.OutputTokens
	}
	if src.Cost != 0 {
		dst.Cost = src.Cost
	}
	return dst
}

// payloadRoot возвращает вложенный объект key или само событие для плоских бэкендов.
func payloadRoot(ev stream.Event, key string) gjson.Result {
	if nested := ev.Get(key); nested.IsObject() {
		return nested
	}
	return gjson.ParseBytes(ev.Raw)
}

func first(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := root.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func traceFromEvent(ev stream.Event, currentStep string, at time.Time) HTTPTrace {
	t := ParseTrace(payloadRoot(ev, "http_trace"), at)
	if t.Step == "" {
		t.Step = currentStep
	}
	return t
}

// ParseTrace читает трассу из JSON-объекта события или сохраненной трассы.
// at используется, если в объекте нет своего timestamp.
func ParseTrace(root gjson.Result, at time.Time) HTTPTrace {
	t := HTTPTrace{
		ID:              first(root, "id", "trace_id", "correlation_id").String(),
		Timestamp:       at,
		Step:            first(root, "step").String(),
		Method:          first(root, "method").String(),
		URL:             first(root, "url").String(),
		DurationMS:      first(root, "duration_ms", "durationMs", "duration").Float(),
		RequestHeaders:  stringMap(first(root, "request_headers", "requestHeaders", "request.headers")),
		RequestBody:     rawJSON(first(root, "request_body", "requestBody", "request.body", "request")),
		ResponseHeaders: stringMap(first(root, "response_headers", "responseHeaders", "response.headers")),
		ResponseBody:    rawJSON(first(root, "response_body", "responseBody", "response.body", "response")),
		Error:           first(root, "error").String(),
		Model:           first(root, "model").String(),
		InputTokens:     int(first(root, "tokens.input", "input_tokens", "inputTokens", "usage.prompt_tokens").Int()),
		OutputTokens:    int(first(root, "tokens.output", "output_tokens", "outputTokens", "usage.completion_tokens").Int()),
		Cost:            traceCost(root),
	}
	// В плоском виде status занят дискриминатором события, поэтому берём только число.
	if s := first(root, "status_code", "statusCode", "status"); s.Type == gjson.Number {
		t.Status = int(s.Int())
	}
	if ts := first(root, "timestamp", "created_at"); ts.Exists() {
		if parsed, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			t.Timestamp = parsed
		}
	}
	return t
}

// traceCost принимает и число, и объект {input, output, total}.
func traceCost(root gjson.Result) float64 {
	c := first(root, "cost", "cost_usd")
	if !c.IsObject() {
		return c.Float()
	}
	if total := c.Get("total"); total.Exists() {
		return total.Float()
	}
	return c.Get("input").Float() + c.Get("output").Float()
}

func stepDetailFromEvent(ev stream.Event) StepDetail {
	root := payloadRoot(ev, "step_detail")
	return StepDetail{
		Step:          first(root, "step").String(),
		PromptSlug:    first(root, "prompt_slug", "prompt.slug").String(),
		PromptVersion: int(first(root, "prompt_version", "prompt.version").Int()),
		Model:         first(root, "model").String(),
		Inputs:        rawJSON(first(root, "inputs")),
		Config:        rawJSON(first(root, "config")),
	}
}

func savedFromEvent(ev stream.Event) SavedEvent {
	root := payloadRoot(ev, "saved")
	s := SavedEvent{
		Step:  first(root, "step").String(),
		Table: first(root, "table").String(),
		RowID: first(root, "row_id", "id").String(),
	}
	urls := first(root, "storage_urls", "urls", "url")
	switch {
	case urls.IsArray() || urls.IsObject():
		urls.ForEach(func(_, v gjson.Result) bool {
			if v.String() != "" {
				s.URLs = append(s.URLs, v.String())
			}
			return true
		})
	case urls.String() != "":
		s.URLs = []string{urls.String()}
	}
	return s
}

// successContent достает результат стадии: data.content, либо строку data.
func successContent(ev stream.Event) (string, bool) {
	if c := ev.Get("data.content"); c.Exists() {
		return c.String(), true
	}
	if d := ev.Get("data"); d.Type == gjson.String {
		return d.String(), true
	}
	if c := ev.Get("content"); c.Exists() {
		return c.String(), true
	}
	return "", false
}

func patternIDFromEvent(ev stream.Event) string {
	if ev.PatternID != "" {
		return ev.PatternID
	}
	return first(gjson.ParseBytes(ev.Raw), "data.pattern_id", "data.id", "data.pattern.id").String()
}

func stringMap(r gjson.Result) map[string]string {
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

func rawJSON(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Raw == "" {
		return nil
	}
	return json.RawMessage(r.Raw)
}
