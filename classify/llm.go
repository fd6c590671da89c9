package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	openai "github.com/sashabaranov/go-openai"

	"podolsknews/config"
	"podolsknews/dbmodel"
	"podolsknews/monitoring"
)

// Scorer returns topic/score pairs for a cluster's text. Implementations
// are free to return fewer than len(labels) entries, or none at all --
// AssignForClusters treats an empty result as a signal to fall back to the
// keyword heuristic.
type Scorer interface {
	Score(ctx context.Context, text string, labels []string, lang string) ([]dbmodel.TopicScore, error)
}

// llmScoreLine mirrors one entry of the scorer's expected JSON reply,
// either {"topics":[{"title":...,"score":...}]} or a bare array of the
// same entries.
type llmScoreLine struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type llmScoreEnvelope struct {
	Topics []llmScoreLine `json:"topics"`
}

const (
	requestTimeout = 12 * time.Second
	breakerName    = "classify-llm"
)

// OpenAIScorer talks to an OpenAI-compatible chat completions endpoint
// (local llama.cpp-server or hosted), wrapped in a circuit breaker so a
// wedged model doesn't stall every cluster in a tick.
type OpenAIScorer struct {
	client  *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	log     *monitoring.Logger
}

// NewOpenAIScorer builds a scorer against cfg.Endpoint/cfg.Model. apiKey may
// be empty for local servers that don't check it.
func NewOpenAIScorer(cfg *config.ClassifierConfig, apiKey string) *OpenAIScorer {
	oaCfg := openai.DefaultConfig(apiKey)
	oaCfg.BaseURL = cfg.Endpoint

	settings := gobreaker.Settings{
		Name:    breakerName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			monitoring.IncrementCircuitBreakerTrips()
		},
	}

	return &OpenAIScorer{
		client:  openai.NewClientWithConfig(oaCfg),
		model:   cfg.Model,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     monitoring.NewLogger("Classify"),
	}
}

// Score sends the cluster text plus the current taxonomy to the model and
// applies the recovery ladder: parse strict JSON, else recover via
// case-insensitive label match, else fall back to uniform scores over the
// full taxonomy for a non-empty-but-unparseable reply. A genuinely empty
// reply (even after the plain-prompt retry) is signalled by a nil slice
// with no error, leaving the keyword heuristic to the caller: the uniform
// tier governs an unparseable non-empty reply, the heuristic a genuinely
// empty one.
func (s *OpenAIScorer) Score(ctx context.Context, text string, labels []string, lang string) ([]dbmodel.TopicScore, error) {
	monitoring.IncrementClassifyInvocations()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := buildPrompt(text, labels, lang)

	raw, err := s.complete(reqCtx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	if err != nil {
		monitoring.IncrementClassifyErrors()
		if errors.Is(err, gobreaker.ErrOpenState) {
			s.log.Warn("классификатор временно отключен автоматическим выключателем")
			return nil, nil
		}
		s.log.Error("ошибка вызова классификатора: %v", err)
		return nil, nil
	}

	// If the model returned nothing at all for the system+user turn, retry
	// once with a flatter single-message prompt before giving up on the LLM
	// entirely. Some small instruct models drop empty-handed out of a
	// two-turn chat template but answer the flat form.
	if strings.TrimSpace(raw) == "" {
		raw, err = s.complete(reqCtx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: systemPrompt + "\n\n" + prompt},
		})
		if err != nil {
			monitoring.IncrementClassifyErrors()
			return nil, nil
		}
	}

	if strings.TrimSpace(raw) == "" {
		// Genuinely empty after both attempts: let the caller's keyword
		// heuristic run instead of guessing blind.
		return nil, nil
	}

	scores := parseScorerReply(raw, labels)
	if len(scores) == 0 {
		monitoring.IncrementClassifyFallbacks()
		scores = uniformScores(labels)
	}
	return scores, nil
}

// uniformScores is the recovery ladder's last rung: an equal score across
// the full taxonomy, used when the model's reply was non-empty but neither
// valid JSON nor a recognizable label.
func uniformScores(labels []string) []dbmodel.TopicScore {
	if len(labels) == 0 {
		return nil
	}
	equal := 1.0 / float64(len(labels))
	out := make([]dbmodel.TopicScore, len(labels))
	for i, label := range labels {
		out[i] = dbmodel.TopicScore{Label: label, Score: equal}
	}
	return out
}

// maxScoreTokens caps single-item generation; the classifier always
// scores one cluster at a time, never bulk.
const maxScoreTokens = 512

// complete runs one circuit-broken chat completion call and returns the
// first choice's content, or "" if the model produced no choices.
func (s *OpenAIScorer) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    messages,
			Temperature: 0,
			MaxTokens:   maxScoreTokens,
			Stop:        []string{"}"},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	raw, _ := result.(string)
	return raw, nil
}

const systemPrompt = "You are a strict news topic classifier. Respond only with JSON."

// promptTextLimit caps the cluster text before it's embedded in the
// prompt.
const promptTextLimit = 2000

// buildPrompt constructs the chat-style classification prompt: the fixed
// taxonomy, the cluster text (truncated to promptTextLimit characters),
// and the requested reply shape.
func buildPrompt(text string, labels []string, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", lang)
	fmt.Fprintf(&b, "Topics: %s\n", strings.Join(labels, ", "))
	b.WriteString("Text:\n")
	b.WriteString(truncateChars(text, promptTextLimit))
	b.WriteString("\n\nReturn JSON of the shape {\"topics\":[{\"title\":\"<topic>\",\"score\":<0..1>}]}, ")
	b.WriteString("at most 3 entries, ordered most relevant first. Use only the listed topics.")
	return b.String()
}

// truncateChars truncates s to at most n runes.
func truncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// parseScorerReply implements the recovery ladder: a {"topics":[...]} or
// bare-object/bare-array JSON decode first (clipped to the largest {...}
// substring, since models wrap their JSON in prose), then a case-insensitive
// match of the stripped raw output against the labels -- exact first, then
// substring -- scored 1.0 and treated as the sole topic, so a reply like
// "Tech." still resolves. An unrecoverable reply returns nil, not an
// error.
func parseScorerReply(raw string, labels []string) []dbmodel.TopicScore {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// The completion request stops generation on "}"; some backends exclude
	// the stop sequence itself from the returned text, so restore it before
	// decoding rather than treating a truncated object as unparseable.
	if strings.HasPrefix(raw, "{") && !strings.HasSuffix(raw, "}") {
		raw += "}"
	}
	obj := clipObject(raw)

	var env llmScoreEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err == nil && len(env.Topics) > 0 {
		return linesToScores(env.Topics, labels)
	}

	if scores := parseLabelMap(obj, labels); len(scores) > 0 {
		return scores
	}

	var lines []llmScoreLine
	if err := json.Unmarshal([]byte(raw), &lines); err == nil && len(lines) > 0 {
		return linesToScores(lines, labels)
	}

	stripped := strings.ToLower(strings.Trim(raw, " \t\r\n.,!?\"'`"))
	for _, label := range labels {
		if stripped == strings.ToLower(label) {
			return []dbmodel.TopicScore{{Label: label, Score: 1.0, IsPrimary: true}}
		}
	}
	for _, label := range labels {
		if strings.Contains(stripped, strings.ToLower(label)) {
			return []dbmodel.TopicScore{{Label: label, Score: 1.0, IsPrimary: true}}
		}
	}
	return nil
}

// clipObject returns the largest {...} substring of raw, or raw unchanged
// when no braces are present.
func clipObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

// parseLabelMap decodes the single-object prompt shape, a JSON object
// mapping label -> number: each known label's value is clamped into [0,1],
// unknown keys are dropped, and the result is accepted only if at least one
// known label scored positive.
func parseLabelMap(obj string, labels []string) []dbmodel.TopicScore {
	var m map[string]float64
	if err := json.Unmarshal([]byte(obj), &m); err != nil || len(m) == 0 {
		return nil
	}

	byKey := make(map[string]string, len(labels))
	for _, l := range labels {
		byKey[normKey(l)] = l
	}

	out := make([]dbmodel.TopicScore, 0, len(m))
	var positive bool
	for k, v := range m {
		label, ok := byKey[normKey(k)]
		if !ok {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		if v > 0 {
			positive = true
		}
		out = append(out, dbmodel.TopicScore{Label: label, Score: v})
	}
	if !positive {
		return nil
	}
	return out
}

func linesToScores(lines []llmScoreLine, labels []string) []dbmodel.TopicScore {
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[strings.ToLower(l)] = true
	}

	out := make([]dbmodel.TopicScore, 0, len(lines))
	for _, l := range lines {
		canon := canonicalize(l.Title)
		if canon == "" {
			if allowed[strings.ToLower(strings.TrimSpace(l.Title))] {
				canon = strings.TrimSpace(l.Title)
			} else {
				continue
			}
		}
		out = append(out, dbmodel.TopicScore{Label: canon, Score: l.Score})
	}
	return out
}
