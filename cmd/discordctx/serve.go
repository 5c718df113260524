package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/chatbot"
	"github.com/nextlevelbuilder/discordctx/internal/config"
	"github.com/nextlevelbuilder/discordctx/internal/conversation"
	"github.com/nextlevelbuilder/discordctx/internal/discordio"
	"github.com/nextlevelbuilder/discordctx/internal/indexing"
	"github.com/nextlevelbuilder/discordctx/internal/inline"
	"github.com/nextlevelbuilder/discordctx/internal/llm"
	"github.com/nextlevelbuilder/discordctx/internal/media"
	"github.com/nextlevelbuilder/discordctx/internal/mediaupload"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/ocr"
	"github.com/nextlevelbuilder/discordctx/internal/patterns"
	"github.com/nextlevelbuilder/discordctx/internal/paths"
	"github.com/nextlevelbuilder/discordctx/internal/restart"
	"github.com/nextlevelbuilder/discordctx/internal/schedule"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
	"github.com/nextlevelbuilder/discordctx/internal/streaming"
	"github.com/nextlevelbuilder/discordctx/internal/telemetry"
)

// pruneInterval is how often the conversation-prune sweep runs; individual
// channels still carry their own prune_interval_hours, but the sweep itself
// only needs to be finer-grained than the tightest configured window.
const pruneInterval = 1 * time.Hour

// mediaFlushInterval matches §4.4 step 8's documented 30s dirty-flag flush.
const mediaFlushInterval = 30 * time.Second

// indexMaintenanceInterval drives the periodic channel/pin re-index and
// stale-user cleanup sweep (§4.2) over every guild observed so far.
const indexMaintenanceInterval = 6 * time.Hour

// guildTracker records every guild the bot has seen a message from, so the
// index-maintenance sweep knows which guilds to walk without needing a
// separate guild-list API call.
type guildTracker struct {
	mu     sync.Mutex
	guilds map[string]struct{}
}

func newGuildTracker() *guildTracker {
	return &guildTracker{guilds: make(map[string]struct{})}
}

func (g *guildTracker) observe(guildID string) {
	if guildID == "" {
		return
	}
	g.mu.Lock()
	g.guilds[guildID] = struct{}{}
	g.mu.Unlock()
}

func (g *guildTracker) snapshot() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.guilds))
	for id := range g.guilds {
		out = append(out, id)
	}
	return out
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Discord.Token == "" {
		slog.Error("no Discord bot token configured (set DISCORDCTX_DISCORD_TOKEN)")
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown reported an error", "error", err)
		}
	}()

	store := storage.New()
	layout := paths.NewLayout(cfg.DataDir)

	idx := indexing.New(store, layout)
	convStore := conversation.New(store, layout, idx)

	configStore, err := config.NewStore(store, layout)
	if err != nil {
		slog.Error("failed to load inline/chatbot config overrides", "error", err)
		os.Exit(1)
	}

	matcher := patterns.New(store, layout)
	if err := matcher.Load(); err != nil {
		slog.Warn("failed to load pattern rulebook, starting empty", "error", err)
	}

	ocrConfigs := ocr.NewConfigStore(store, layout)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	uploadServices := []mediaupload.Service{
		mediaupload.NewLitterboxService(httpClient),
		mediaupload.NewCatboxService(httpClient),
	}
	var permanentUploads, temporaryUploads []mediaupload.Service
	for _, svc := range uploadServices {
		if svc.Name() == "catbox" {
			permanentUploads = append(permanentUploads, svc)
		} else {
			temporaryUploads = append(temporaryUploads, svc)
		}
	}
	if key := os.Getenv("DISCORDCTX_PIXELDRAIN_API_KEY"); key != "" {
		temporaryUploads = append(temporaryUploads, mediaupload.NewPixeldrainService(httpClient, key))
	}
	mediaCache := media.New(store, layout.MediaCache(), media.NewHTTPFetcher(), permanentUploads, temporaryUploads)

	client, err := discordio.NewSession(cfg.Discord.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "error", err)
		os.Exit(1)
	}

	models := llm.NewRegistry()
	for prefix, p := range cfg.LLM.Providers {
		models.Register(prefix, llm.NewOpenAICompatibleProvider(prefix, p.APIKey, p.APIBase))
	}
	if _, ok := cfg.LLM.Providers["openai"]; ok {
		models.SetFallback("openai")
	}

	relay := streaming.NewRelay(client, models)

	engine := inline.New(client, convStore, idx, configStore, models, relay)

	dispatcher := chatbot.New(client, convStore, idx, configStore, models, relay, mediaCache, cfg.LLM.DefaultModel)

	pipeline := ocr.New(ocr.DefaultQueueSize, ocr.NewTesseractRecognizer(), matcher, client, ocrConfigs)

	guilds := newGuildTracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go mediaCache.RunPeriodicFlush(ctx, mediaFlushInterval)

	go func() {
		if err := matcher.Watch(ctx); err != nil {
			slog.Warn("pattern hot-reload watcher stopped", "error", err)
		}
	}()

	go func() {
		if err := pipeline.Run(ctx, ocr.DefaultWorkerCount); err != nil {
			slog.Error("OCR pipeline stopped", "error", err)
		}
	}()

	go schedule.Run(ctx, schedule.EveryHours(int(pruneInterval.Hours())), func(context.Context) {
		convStore.PruneAll(configStore.PruneSpecs())
	})

	go schedule.Run(ctx, schedule.EveryHours(int(indexMaintenanceInterval.Hours())), func(sweepCtx context.Context) {
		runIndexMaintenance(sweepCtx, client, idx, convStore, configStore, guilds)
	})

	restartCfg := restart.DefaultConfig()
	if cfg.Restart.MaxUptimeHours > 0 {
		restartCfg.Threshold = time.Duration(cfg.Restart.MaxUptimeHours) * time.Hour
	}
	if d, err := time.ParseDuration(cfg.Restart.CheckInterval); err == nil && d > 0 {
		restartCfg.CheckInterval = d
	}
	poller := restart.NewPoller(restartCfg, func(shutdownCtx context.Context) error {
		return mediaCache.Flush()
	})
	go poller.Run(ctx)

	handlers := discordio.EventHandlers{
		OnMessageCreate: func(msg discordio.Message) {
			guilds.observe(msg.GuildID)
			handleMessage(ctx, client, httpClient, idx, convStore, configStore, ocrConfigs, pipeline, engine, dispatcher, msg)
		},
		// Raw edit events carry only the new text; attachments/embeds are
		// not re-fetched, so only the content field changes (§4.3).
		OnMessageUpdate: func(msg discordio.Message) {
			if msg.GuildID == "" || msg.MessageID == "" {
				return
			}
			ex := conversation.Extract(msg.Content, nil, nil)
			convStore.Edit(msg.GuildID, msg.ChannelID, msg.MessageID, ex.CleanedContent)
		},
		OnMessageDelete: func(guildID, channelID, messageID string) {
			if guildID == "" {
				return
			}
			convStore.Delete(guildID, channelID, messageID)
		},
	}

	if err := client.Connect(ctx, handlers); err != nil {
		slog.Error("failed to connect to Discord gateway", "error", err)
		os.Exit(1)
	}
	slog.Info("discordctx: connected, serving")

	<-sigCh
	slog.Info("discordctx: shutting down")
	cancel()

	if err := mediaCache.ForceFlush(); err != nil {
		slog.Error("final media cache flush failed", "error", err)
	}
	if err := client.Close(); err != nil {
		slog.Warn("error closing Discord session", "error", err)
	}
}

// handleMessage classifies an inbound message per §2's data-flow summary:
// OCR candidate, chatbot-channel recording, or inline trigger. A message can
// satisfy more than one of these (e.g. an image posted with a mention).
func handleMessage(
	ctx context.Context,
	client discordio.Client,
	httpClient *http.Client,
	idx *indexing.Manager,
	convStore *conversation.Store,
	configStore *config.Store,
	ocrConfigs *ocr.ConfigStore,
	pipeline *ocr.Pipeline,
	engine *inline.Engine,
	dispatcher *chatbot.Dispatcher,
	msg discordio.Message,
) {
	if msg.AuthorID == "" || msg.AuthorIsBot {
		return
	}

	ocrChannel := ocrConfigs.ChannelConfig(msg.GuildID, msg.ChannelID)
	if ocrChannel.IsReadChannel {
		if candidate, ok := ocrCandidateFrom(ctx, httpClient, msg); ok {
			pipeline.Enqueue(ctx, candidate)
		}
	}

	chatCfg := configStore.ChatbotConfig(msg.GuildID, msg.ChannelID)
	everyoneRoleID := msg.GuildID // discordgo represents @everyone's role id as the guild id

	if chatCfg.Enabled {
		convStore.Add(msg.GuildID, msg.ChannelID, conversation.DiscordMessageLike{
			MessageID:           msg.MessageID,
			UserID:              msg.AuthorID,
			Username:            msg.AuthorDisplayName,
			Content:             msg.Content,
			Timestamp:           msg.Timestamp,
			ReferencedMessageID: msg.ReferencedMessageID,
			Attachments:         toAttachmentLikes(msg.Attachments),
			Embeds:              toEmbedLikes(msg.Embeds),
		}, chatCfg.MaxContextMessages, chatCfg.ContextWindowHours)
		dispatcher.HandleMessage(ctx, msg, chatCfg)
		return
	}

	engine.HandleMessage(ctx, msg.GuildID, false, everyoneRoleID, msg.MentionedUserIDs, msg)
}

// ocrCandidateFrom implements §4.7's dual admission path: first scan
// attachments, then (when none are eligible) fall back to HEAD/GET-probing
// the first HTTP URL found in the message content, grounded on
// original_source/core/ocr.py's process_pics else-branch.
func ocrCandidateFrom(ctx context.Context, httpClient *http.Client, msg discordio.Message) (ocr.Candidate, bool) {
	for _, a := range msg.Attachments {
		c := ocr.AttachmentCandidate{ContentType: a.ContentType, SizeBytes: a.SizeBytes, Width: a.Width, Height: a.Height}
		if ocr.IsEligible(c) {
			return ocr.Candidate{
				GuildID:   msg.GuildID,
				ChannelID: msg.ChannelID,
				MessageID: msg.MessageID,
				ImageURL:  a.URL,
			}, true
		}
	}

	url := ocr.FirstURL(msg.Content)
	if url == "" {
		return ocr.Candidate{}, false
	}
	probed, err := ocr.ProbeURL(ctx, httpClient, url)
	if err != nil {
		slog.Debug("ocr: url probe declined candidate", "channel_id", msg.ChannelID, "message_id", msg.MessageID, "error", err)
		return ocr.Candidate{}, false
	}
	if !ocr.IsEligible(probed) {
		return ocr.Candidate{}, false
	}
	return ocr.Candidate{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.MessageID,
		ImageURL:  url,
	}, true
}

// runIndexMaintenance is the periodic §4.2 sweep: for every chatbot-enabled
// channel in every guild seen so far, refresh the channel and pin indexes,
// then drop users no longer referenced by either conversation history or
// pins. Wired in because UpdateChannel/IndexPinnedMessages/CleanupStaleUsers/
// ContextualCleanup were otherwise only exercised by unit tests.
func runIndexMaintenance(
	ctx context.Context,
	client discordio.Client,
	idx *indexing.Manager,
	convStore *conversation.Store,
	configStore *config.Store,
	guilds *guildTracker,
) {
	for _, guildID := range guilds.snapshot() {
		referenced := make(map[string]struct{})

		for _, channelID := range configStore.ChatbotChannelIDs(guildID) {
			cfg := configStore.ChatbotConfig(guildID, channelID)

			refreshChannelIndex(ctx, client, idx, guildID, channelID)
			refreshPinIndex(ctx, client, idx, guildID, channelID, referenced)

			for _, m := range convStore.LoadHistory(guildID, channelID, cfg.ContextWindowHours) {
				referenced[m.UserID] = struct{}{}
			}
		}

		removedStale := idx.CleanupStaleUsers(guildID, indexing.DefaultCleanupHorizon)
		removedUnreferenced := idx.ContextualCleanup(guildID, referenced)
		if removedStale > 0 || removedUnreferenced > 0 {
			slog.Info("indexing: maintenance sweep pruned users", "guild_id", guildID, "stale", removedStale, "unreferenced", removedUnreferenced)
		}
	}
}

func refreshChannelIndex(ctx context.Context, client discordio.Client, idx *indexing.Manager, guildID, channelID string) {
	ch, err := client.FetchChannel(ctx, channelID)
	if err != nil {
		slog.Warn("indexing: failed to fetch channel metadata during sweep", "guild_id", guildID, "channel_id", channelID, "error", err)
		return
	}
	idx.UpdateChannel(model.DiscordChannelLike{
		ChannelID:        ch.ChannelID,
		GuildID:          guildID,
		ChannelName:      ch.Name,
		ChannelType:      ch.Type,
		Topic:            ch.Topic,
		CategoryName:     ch.CategoryName,
		IsNSFW:           ch.IsNSFW,
		GuildName:        ch.GuildName,
		GuildDescription: ch.GuildDescription,
	})
}

func refreshPinIndex(ctx context.Context, client discordio.Client, idx *indexing.Manager, guildID, channelID string, referenced map[string]struct{}) {
	raw, err := client.FetchPins(ctx, channelID)
	if err != nil {
		slog.Warn("indexing: failed to fetch pins during sweep", "guild_id", guildID, "channel_id", channelID, "error", err)
		return
	}

	var candidates []model.ConversationMessage
	var authors []model.DiscordUserLike
	for _, m := range raw {
		dm := conversation.DiscordMessageLike{
			MessageID:   m.MessageID,
			UserID:      m.AuthorID,
			Username:    m.AuthorDisplayName,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Attachments: toAttachmentLikes(m.Attachments),
			Embeds:      toEmbedLikes(m.Embeds),
		}
		if msg, ok := conversation.ToConversationMessage(guildID, dm, pinWindowHoursForSweep); ok {
			candidates = append(candidates, msg)
			referenced[msg.UserID] = struct{}{}
		}
		if !m.AuthorIsBot && m.AuthorID != "" {
			authors = append(authors, model.DiscordUserLike{
				UserID:      m.AuthorID,
				Username:    m.AuthorUsername,
				DisplayName: m.AuthorDisplayName,
			})
		}
	}

	idx.IndexPinnedMessages(guildID, channelID, candidates, conversation.IsValidContextMessage, authors)
}

// pinWindowHoursForSweep bypasses ConversationStore's normal history window
// when converting pins during the maintenance sweep, matching
// internal/inline.pinWindowHours: a pin is retained regardless of age.
const pinWindowHoursForSweep = 24 * 365 * 50

func toAttachmentLikes(atts []discordio.Attachment) []conversation.AttachmentLike {
	out := make([]conversation.AttachmentLike, 0, len(atts))
	for _, a := range atts {
		out = append(out, conversation.AttachmentLike{URL: a.URL, ContentType: a.ContentType})
	}
	return out
}

func toEmbedLikes(embeds []discordio.Embed) []conversation.EmbedLike {
	out := make([]conversation.EmbedLike, 0, len(embeds))
	for _, e := range embeds {
		out = append(out, conversation.EmbedLike{Type: e.Type, URL: e.URL})
	}
	return out
}
