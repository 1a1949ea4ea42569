package main

import (
	"bufio"
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strconv"
	"strings"

	"github.com/lmarsden/marksearch/internal/ai"
	"github.com/lmarsden/marksearch/internal/config"
	"github.com/lmarsden/marksearch/internal/rag"
	"github.com/lmarsden/marksearch/internal/store"
	"github.com/lmarsden/marksearch/internal/vectordb"
	"github.com/lmarsden/marksearch/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("marksearch", pflag.ExitOnError)
	query := fs.String("query", "", "Run one search and exit")
	ask := fs.String("ask", "", "Ask the model one question and exit")

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	client, err := buildClient(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI client")
	}

	ctx := context.Background()

	db, err := vectordb.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to vector store")
	}
	defer db.Close()

	st, err := store.New(ctx, db, cfg.Collection, client.Dim())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open collection")
	}

	app, err := rag.New(ctx, st, client, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build facade")
	}

	r := &repl{app: app, cfg: &cfg}

	if *query != "" {
		r.search(ctx, *query)
		return
	}
	if *ask != "" {
		r.chat(ctx, *ask)
		return
	}

	r.run(ctx)
}

type repl struct {
	app *rag.App
	cfg *config.Specification
}

func (r *repl) run(ctx context.Context) {
	fmt.Println("marksearch interactive shell, type 'help' for commands")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(cmd) {
		case "help":
			r.help()
		case "insert":
			r.insert(ctx, arg)
		case "batchinsert":
			r.batchInsert(ctx, arg)
		case "search":
			r.search(ctx, arg)
		case "chat":
			r.chat(ctx, arg)
		case "delete":
			r.delete(ctx, arg)
		case "list":
			r.list(ctx, arg)
		case "count":
			fmt.Printf("%d records\n", r.app.Count(ctx))
		case "clear":
			r.clear(ctx, arg)
		case "split":
			r.split(ctx, arg)
		case "exit", "quit":
			return
		default:
			fmt.Printf("unknown command %q, type 'help'\n", cmd)
		}
	}
}

func (r *repl) help() {
	fmt.Println(`Commands:
  insert <text>        insert a text into the collection
  batchinsert <texts>  insert several texts separated by " | "
  search <query>       search for similar texts
  chat <question>      answer a question over retrieved context
  delete <id>          delete a record by id
  list [subject]       list stored texts, optionally by subject
  count                show how many records are stored
  clear [subject]      remove all records, or one subject's records
  split <path>         split a Markdown file and store its chunks
  exit | quit          leave the shell`)
}

func (r *repl) insert(ctx context.Context, text string) {
	if text == "" {
		fmt.Println("usage: insert <text>")
		return
	}
	id, err := r.app.InsertText(ctx, text, r.cfg.Subject, nil)
	if err != nil {
		fmt.Printf("insert failed: %v\n", err)
		return
	}
	fmt.Printf("inserted id %d\n", id)
}

func (r *repl) batchInsert(ctx context.Context, arg string) {
	var texts []string
	for _, t := range strings.Split(arg, " | ") {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		fmt.Println("usage: batchinsert <text> | <text> | ...")
		return
	}

	subjects := make([]string, len(texts))
	for i := range subjects {
		subjects[i] = r.cfg.Subject
	}
	ids, err := r.app.InsertBatchTexts(ctx, texts, subjects, nil)
	if err != nil {
		fmt.Printf("batch insert failed: %v\n", err)
		return
	}
	fmt.Printf("inserted %d texts (ids %v)\n", len(ids), ids)
}

func (r *repl) search(ctx context.Context, q string) {
	if q == "" {
		fmt.Println("usage: search <query>")
		return
	}
	hits, err := r.app.QueryText(ctx, q, r.cfg.SearchLimit, true)
	if err != nil {
		fmt.Printf("search failed: %v\n", err)
		return
	}
	if len(hits) == 0 {
		fmt.Println("no results")
		return
	}
	for i, h := range hits {
		printHit(i+1, h)
	}
}

func printHit(rank int, h models.SearchHit) {
	score := "n/a"
	if h.Score != nil {
		score = fmt.Sprintf("%.4f", *h.Score)
	}
	fmt.Printf("%2d. [%s] id=%d subject=%s\n", rank, score, h.ID, h.Subject)
	if h.Context != "" {
		fmt.Printf("    context: %s\n", h.Context)
	}
	fmt.Printf("    %s\n", h.Text)
}

func (r *repl) chat(ctx context.Context, q string) {
	if q == "" {
		fmt.Println("usage: chat <question>")
		return
	}
	answer, err := r.app.Chat(ctx, q, r.cfg.SearchLimit)
	if err != nil {
		fmt.Printf("chat failed: %v\n", err)
		return
	}
	fmt.Println(answer)
}

func (r *repl) delete(ctx context.Context, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("usage: delete <id>")
		return
	}
	if err := r.app.DeleteByID(ctx, id); err != nil {
		fmt.Printf("delete failed: %v\n", err)
		return
	}
	fmt.Printf("deleted id %d\n", id)
}

func (r *repl) list(ctx context.Context, subject string) {
	entries, err := r.app.ListTexts(ctx, subject)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("no records")
		return
	}
	for _, e := range entries {
		fmt.Printf("%6d  [%s]  %s\n", e.ID, e.Subject, e.Text)
	}
}

func (r *repl) clear(ctx context.Context, subject string) {
	if err := r.app.ClearAll(ctx, subject); err != nil {
		fmt.Printf("clear failed: %v\n", err)
		return
	}
	if subject == "" {
		fmt.Println("collection cleared")
	} else {
		fmt.Printf("cleared subject %q\n", subject)
	}
}

func (r *repl) split(ctx context.Context, path string) {
	if path == "" {
		fmt.Println("usage: split <path>")
		return
	}
	n, ids, err := r.app.IngestDocument(ctx, path, r.cfg.Subject, r.cfg.ChunkSize, r.cfg.ChunkOverlap)
	if err != nil {
		fmt.Printf("split failed: %v\n", err)
		return
	}
	if n == 0 {
		fmt.Println("document produced no chunks")
		return
	}
	fmt.Printf("stored %d chunks (ids %d..%d)\n", n, ids[0], ids[len(ids)-1])
}

func buildClient(cfg *config.Specification) (ai.Client, error) {
	clientConfig := &ai.ClientConfig{
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
		BaseURL:    cfg.OllamaURL,
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		clientConfig.Provider = ai.ProviderOpenAI
	case "vertexai":
		clientConfig.Provider = ai.ProviderVertexAI
	case "ollama":
		clientConfig.Provider = ai.ProviderOllama
	case "stub":
		clientConfig.Provider = ai.ProviderStub
		if clientConfig.Dim == 0 {
			clientConfig.Dim = store.DefaultDim
		}
	default:
		clientConfig.Provider = ai.Provider(cfg.Provider)
	}

	return ai.NewRegistry().Client(clientConfig)
}
