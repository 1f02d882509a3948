package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/myasobot/myasobot/internal/clients"
	"github.com/myasobot/myasobot/internal/llm"
	"github.com/myasobot/myasobot/internal/memory"
	"github.com/myasobot/myasobot/internal/observability"
	"github.com/myasobot/myasobot/internal/products"
	"github.com/myasobot/myasobot/internal/prompts"
	"github.com/myasobot/myasobot/internal/reply"
)

// defaultBasePrompt is the built-in conversation contract, appended
// after the operator-managed topic prompt when one exists. It explains
// the catalog block injected into each turn and the photo manifest.
const defaultBasePrompt = `Ты менеджер по продажам мясной продукции. Общайся на русском, дружелюбно и по делу.

==========================================================================================================
РАБОТА С ДАННЫМИ КАТАЛОГА
==========================================================================================================

К сообщению клиента может прилагаться блок "Данные каталога по запросу" с результатом поиска по базе товаров.

1. Используй данные каталога ТОЛЬКО когда клиент спрашивает о товарах, ценах или ассортименте.
2. НЕ выдумывай товары, цены и поставщиков. Всё, что ты называешь клиенту, должно быть в данных каталога.
3. Цены в данных каталога уже итоговые. НЕ пересчитывай их и не применяй наценки повторно.
4. Если подходящих товаров в данных нет, честно скажи об этом и предложи уточнить запрос.
5. Секция [PRODUCT_IDS]{"product_ids": [...]}[/PRODUCT_IDS] служебная. НЕ упоминай её в тексте ответа.

==========================================================================================================
ОТПРАВКА ФОТО
==========================================================================================================

Если клиент ЯВНО просит фото товаров ("отправь фото", "покажи фотографии", "хочу увидеть фото"):
1. Добавь В САМЫЙ КОНЕЦ ответа секцию [PRODUCT_IDS]{"product_ids": [ID нужных товаров]}[/PRODUCT_IDS]
2. ID бери из секции [PRODUCT_IDS] в данных каталога или в истории диалога.
3. Фотографии отправятся автоматически, секция до клиента не дойдёт.

Если фото не просят, НЕ добавляй секцию [PRODUCT_IDS] в ответ.`

const catalogBlockLabel = "Данные каталога по запросу:"

// Conversation-steering notes appended to the user turn.
const (
	greetingSecondTurnNote = "ВАЖНО: Это второе сообщение, но клиент поздоровался с тобой. Поздоровайся в ответ, затем продолжай общение."
	greetingNote           = "ВАЖНО: Клиент поздоровался с тобой. Поздоровайся в ответ, затем продолжай общение."
	secondTurnNote         = "ВАЖНО: Это второе сообщение в разговоре. НЕ используй приветствие, сразу переходи к делу."
)

var greetingPhrases = []string{
	"привет", "здравствуй", "здравствуйте", "добрый день", "добрый вечер",
	"доброе утро", "доброй ночи", "доброго дня", "доброго вечера",
	"доброго утра", "здорово", "салют", "хай", "hi", "hello",
	"доброго времени суток", "приветствую", "добро пожаловать",
}

// ProcessMessage handles one inbound customer message: run the catalog
// pipeline on it, compose a conversational reply over the stored
// history, deliver it, send any requested photos, and persist the turn.
// Model failures degrade to the fixed apology instead of an error.
func (s *Service) ProcessMessage(ctx context.Context, phone, message, topic string) (string, error) {
	s.ensureDefaults()
	observability.ObserveConversation("process")

	history, err := s.History.Recent(ctx, phone, s.Config.HistoryWindow)
	if err != nil {
		s.Logger.Warn("conversation history load failed", "phone", phone, "error", err)
		history = nil
	}

	systemVars := s.systemVariables(ctx)
	system := s.systemPrompt(ctx, phone, topic, systemVars)

	catalogBlock := reply.NothingFound
	if search, err := s.runSearch(ctx, message, topic, s.Config.SearchLimit, false); err != nil {
		s.Logger.Warn("catalog pipeline failed", "phone", phone, "error", err)
	} else {
		catalogBlock = search.Reply
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: chatRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: composeUserTurn(message, history, catalogBlock)})

	raw, err := s.Chat.Chat(ctx, messages, s.Config.ReplyTemperature)
	if err != nil {
		s.Logger.Error("reply completion failed", "phone", phone, "error", err)
		if derr := s.deliver(ctx, phone, reply.ProcessingTrouble); derr != nil {
			s.Logger.Warn("apology delivery failed", "phone", phone, "error", derr)
		}
		return reply.ProcessingTrouble, nil
	}
	if strings.TrimSpace(raw) == "" {
		raw = reply.EmptyModelReply
	}

	outbound := reply.StripMarkdown(reply.StripManifest(raw))
	if err := s.deliver(ctx, phone, outbound); err != nil {
		s.Logger.Warn("reply delivery failed", "phone", phone, "error", err)
	}

	s.sendPhotos(ctx, phone, reply.ExtractProductIDs(raw))

	if err := s.History.Append(ctx, phone,
		memory.Message{Role: memory.RoleUser, Content: message},
		memory.Message{Role: memory.RoleAssistant, Content: raw},
	); err != nil {
		s.Logger.Warn("conversation history append failed", "phone", phone, "error", err)
	}

	return outbound, nil
}

// InitConversation opens a fresh dialog: clear stored history, pick a
// topical product selection (random sample when the topical search
// keeps failing), greet the client over their profile, and send the
// selection's photos. Delivery failure is fatal so the caller can
// notify the client through other means.
func (s *Service) InitConversation(ctx context.Context, phone, topic string) (string, error) {
	s.ensureDefaults()
	observability.ObserveConversation("init")

	if err := s.History.Clear(ctx, phone); err != nil {
		s.Logger.Warn("conversation history clear failed", "phone", phone, "error", err)
	}

	profileText := clients.ProfileMissingText
	if profile, err := s.Clients.ByPhone(ctx, phone); err == nil {
		profileText = profile.Text()
	} else if !errors.Is(err, clients.ErrNotFound) {
		s.Logger.Warn("client profile lookup failed", "phone", phone, "error", err)
	}

	systemVars := s.systemVariables(ctx)

	var (
		productsText string
		productIDs   []int64
	)
	if strings.TrimSpace(topic) != "" {
		if result, err := s.runSearch(ctx, topic, topic, s.Config.SearchLimit, true); err == nil {
			productsText, productIDs = result.Reply, result.ProductIDs
		} else {
			s.Logger.Warn("topical search failed, using random sample", "phone", phone, "topic", topic, "error", err)
			productsText, productIDs = s.randomSample(ctx, systemVars)
		}
	} else {
		productsText, productIDs = s.randomSample(ctx, systemVars)
	}

	welcome := strings.Join([]string{
		"Сформируй короткое дружелюбное приветствие для клиента, учитывая его профиль и ассортимент.\n",
		fmt.Sprintf("Тема диалога: %s\n\n", topic),
		fmt.Sprintf("Профиль клиента:\n%s\n\n", profileText),
		fmt.Sprintf("Ассортимент/подборка:\n%s\n\n", productsText),
		"Поприветствуй дружелюбно со смайликами, будь позитивным и энергичным. Предложи помощь и ненавязчиво уточни запрос.",
	}, "")

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt(ctx, phone, topic, systemVars)},
		{Role: llm.RoleUser, Content: welcome},
	}
	raw, err := s.Chat.Chat(ctx, messages, s.Config.ReplyTemperature)
	if err != nil {
		return "", fmt.Errorf("compose greeting: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		raw = reply.EmptyModelReply
	}

	outbound := reply.StripMarkdown(reply.StripManifest(raw))
	if err := s.deliver(ctx, phone, outbound); err != nil {
		return "", fmt.Errorf("deliver greeting: %w", err)
	}

	s.sendPhotos(ctx, phone, productIDs)

	if err := s.History.Append(ctx, phone, memory.Message{Role: memory.RoleAssistant, Content: raw}); err != nil {
		s.Logger.Warn("conversation history append failed", "phone", phone, "error", err)
	}

	return outbound, nil
}

// NotifyTrouble sends the fixed delivery apology. The API layer calls
// it when a background conversation flow fails outright.
func (s *Service) NotifyTrouble(ctx context.Context, phone string) {
	s.ensureDefaults()
	if err := s.deliver(ctx, phone, reply.DeliveryTrouble); err != nil {
		s.Logger.Warn("trouble notice delivery failed", "phone", phone, "error", err)
	}
}

// systemPrompt composes the conversation system prompt: topic template
// when stored, the built-in contract, client info, system variables.
func (s *Service) systemPrompt(ctx context.Context, phone, topic string, systemVars map[string]string) string {
	base := defaultBasePrompt
	if topic != "" {
		if text, found := s.lookupPrompt(ctx, topic); found {
			base = text + "\n\n" + defaultBasePrompt
		}
	}
	return prompts.BuildWithContext(base, clients.InfoBlock(phone, s.isFriend(ctx, phone)), systemVars)
}

func (s *Service) lookupPrompt(ctx context.Context, topic string) (string, bool) {
	text, found, err := s.Prompts.Lookup(ctx, topic)
	if err != nil {
		s.Logger.Warn("prompt template lookup failed", "topic", topic, "error", err)
		return "", false
	}
	if !found || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (s *Service) isFriend(ctx context.Context, phone string) bool {
	profile, err := s.Clients.ByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			s.Logger.Warn("friend flag lookup failed", "phone", phone, "error", err)
		}
		return false
	}
	return profile.IsFriend
}

// randomSample renders a random catalog selection for dialogs where the
// topical search found nothing usable.
func (s *Service) randomSample(ctx context.Context, systemVars map[string]string) (string, []int64) {
	items, err := s.Catalog.Random(ctx, s.Config.FallbackLimit)
	if err != nil {
		if errors.Is(err, products.ErrPoolUnavailable) {
			return reply.DatabaseNotConfigured, nil
		}
		s.Logger.Warn("random product sample failed", "error", err)
		return reply.AssortmentPending, nil
	}
	text, ids := reply.RenderProducts(items, false, s.Config.FallbackLimit, systemVars)
	return text, ids
}

func (s *Service) deliver(ctx context.Context, phone, text string) error {
	if s.Messenger == nil || !s.Messenger.Enabled() {
		s.Logger.Debug("message gateway disabled, reply not delivered", "phone", phone)
		return nil
	}
	return s.Messenger.SendMessage(ctx, phone, text)
}

func (s *Service) sendPhotos(ctx context.Context, phone string, ids []int64) {
	if len(ids) == 0 || s.Messenger == nil || !s.Messenger.Enabled() {
		return
	}
	photos, err := s.Catalog.PhotosByIDs(ctx, ids)
	if err != nil {
		s.Logger.Warn("product photo lookup failed", "phone", phone, "error", err)
		return
	}
	sent := 0
	for _, photo := range photos {
		if err := s.Messenger.SendImage(ctx, phone, photo.Photo, photo.Title); err != nil {
			s.Logger.Warn("product photo send failed", "phone", phone, "product_id", photo.ID, "error", err)
			continue
		}
		sent++
	}
	s.Logger.Info("product photos sent", "phone", phone, "requested", len(ids), "sent", sent)
}

// composeUserTurn appends the conversation-steering notes and the
// catalog block to the raw customer message.
func composeUserTurn(message string, history []memory.Message, catalogBlock string) string {
	greeted := isGreeting(message)
	second := isSecondTurn(history)

	var note string
	switch {
	case greeted && second:
		note = greetingSecondTurnNote
	case greeted:
		note = greetingNote
	case second:
		note = secondTurnNote
	}

	turn := message
	if note != "" {
		turn += "\n\n" + note
	}
	if catalogBlock != "" {
		turn += "\n\n" + catalogBlockLabel + "\n" + catalogBlock
	}
	return turn
}

// isGreeting reports whether the message opens with or contains one of
// the known greeting phrases.
func isGreeting(message string) bool {
	lowered := strings.ToLower(strings.TrimSpace(message))
	if lowered == "" {
		return false
	}
	padded := " " + lowered + " "
	for _, greeting := range greetingPhrases {
		if strings.HasPrefix(lowered, greeting) || strings.Contains(padded, " "+greeting+" ") {
			return true
		}
	}
	return false
}

// isSecondTurn recognizes the first customer reply after the opening
// greeting: history holds just the greeting, or the greeting plus the
// customer's first message.
func isSecondTurn(history []memory.Message) bool {
	switch len(history) {
	case 1:
		return history[0].Role == memory.RoleAssistant
	case 2:
		return history[0].Role == memory.RoleAssistant && history[1].Role == memory.RoleUser
	default:
		return false
	}
}

func chatRole(role string) string {
	switch role {
	case memory.RoleAssistant:
		return llm.RoleAssistant
	case memory.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}
