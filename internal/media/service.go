// Package media implements the media-management functions the model
// can call: lookups, adds, quality changes, removals, wanted lists,
// and download status, backed by Radarr and Sonarr.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/arr"
	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

// lookupParserPrompt steers the cheap model that condenses raw lookup
// results into an answer for the main conversation.
const lookupParserPrompt = "You are a data parser assistant, provide a lot of information, if there are multiple matches to the query list them all, you also include data for media not available on the server. Provide a concise summary, format like this with key value {Media_Name;unavailable;release 1995;tmdbId 862}"

// maxLookupResults caps how many raw results feed the parser model.
const maxLookupResults = 10

// Service owns the media function handlers and their backing clients.
type Service struct {
	radarr      *arr.Client
	sonarr      *arr.Client
	completer   llm.Completer
	lookupModel string
	logger      *slog.Logger
}

// New creates the media service. Either arr client may be nil when the
// corresponding service is not configured; its functions then report
// the absence to the model.
func New(radarr, sonarr *arr.Client, completer llm.Completer, lookupModel string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		radarr:      radarr,
		sonarr:      sonarr,
		completer:   completer,
		lookupModel: lookupModel,
		logger:      logger,
	}
}

// clientFor resolves the format argument to an arr client.
func (s *Service) clientFor(format string) (*arr.Client, error) {
	switch format {
	case "movie":
		if s.radarr == nil {
			return nil, fmt.Errorf("no movie server is configured")
		}
		return s.radarr, nil
	case "series":
		if s.sonarr == nil {
			return nil, fmt.Errorf("no series server is configured")
		}
		return s.sonarr, nil
	default:
		return nil, fmt.Errorf("unknown format %q, must be movie or series", format)
	}
}

// Lookup searches for one or more pipe-separated terms and answers the
// query against the results via the parser model.
func (s *Service) Lookup(ctx context.Context, args map[string]string) (string, error) {
	client, err := s.clientFor(args["format"])
	if err != nil {
		return "", err
	}
	query := args["query"]

	// Queries always get the identifying basics so follow-up calls
	// have correct ids to work with.
	idField := "tmdbId"
	if client.Service() == arr.Sonarr {
		idField = "tvdbId"
	}
	for _, basic := range []string{"title", "year", "availability", idField} {
		if !strings.Contains(query, basic) {
			query += ";" + basic
		}
	}

	tagLabels := s.tagLabels(ctx, client)

	var answers []string
	for _, term := range strings.Split(args["searches"], "|") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		var (
			records   []arr.Record
			termQuery = query
		)
		if lower := strings.ToLower(term); lower == "all" || lower == "everything" {
			records, err = client.All(ctx)
			termQuery = "title;year;availability;file size"
		} else {
			records, err = client.Lookup(ctx, term)
		}
		if err != nil {
			return "", fmt.Errorf("lookup %q: %w", term, err)
		}
		if len(records) == 0 {
			answers = append(answers, fmt.Sprintf("%s: No results", term))
			continue
		}

		lines := make([]string, 0, maxLookupResults)
		for _, r := range records {
			lines = append(lines, describeRecord(client.Service(), r, tagLabels))
			if len(lines) >= maxLookupResults {
				break
			}
		}

		answer, err := llm.InfoQuery(ctx, s.completer, s.lookupModel,
			lookupParserPrompt,
			strings.Join(lines, "\n")+fmt.Sprintf("\nFrom the above information for term %s. %s", term, termQuery))
		if err != nil {
			return "", fmt.Errorf("parse lookup results for %q: %w", term, err)
		}
		answers = append(answers, answer)
	}

	if len(answers) == 0 {
		return "No results", nil
	}
	return strings.Join(answers, "\n"), nil
}

// Add puts media on the server tagged with the requesting user. When
// the item already exists only the attribution tag is added.
func (s *Service) Add(ctx context.Context, args map[string]string) (string, error) {
	client, err := s.clientFor(args["format"])
	if err != nil {
		return "", err
	}
	dbID, err := strconv.ParseInt(args["db_id"], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid db_id %q", args["db_id"])
	}
	quality := args["quality"]
	profileID := arr.QualityProfileID(quality)
	qualityName, _ := arr.QualityName(profileID)
	userName := args[tools.UserNameArg]

	tagID, err := client.UserTagID(ctx, userName)
	if err != nil {
		return "", fmt.Errorf("resolve user tag: %w", err)
	}

	record, err := client.LookupByDBID(ctx, dbID)
	if err != nil {
		return "", err
	}
	title, _ := recStr(record, "title")

	if id := recID(record); id != 0 {
		// Already on the server. Attribute the request to this user too.
		tagIDs := recTagIDs(record)
		for _, existing := range tagIDs {
			if existing == tagID {
				return fmt.Sprintf("%s is already on the server and already in your requests", title), nil
			}
		}
		if err := client.Update(ctx, id, arr.Record{"tags": append(tagIDs, tagID)}); err != nil {
			return "", fmt.Errorf("tag existing media: %w", err)
		}
		return fmt.Sprintf("%s is already on the server, added to your requests", title), nil
	}

	if err := client.Add(ctx, dbID, profileID, []int64{tagID}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %s in %s", title, qualityName), nil
}

// SetRes changes the wanted quality profile of media on the server.
func (s *Service) SetRes(ctx context.Context, args map[string]string) (string, error) {
	client, err := s.clientFor(args["format"])
	if err != nil {
		return "", err
	}
	id, err := strconv.ParseInt(args["id"], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid id %q", args["id"])
	}
	profileID := arr.QualityProfileID(args["quality"])
	qualityName, _ := arr.QualityName(profileID)

	if err := client.Update(ctx, id, arr.Record{"qualityProfileId": profileID}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Set quality to %s", qualityName), nil
}

// Remove drops the user's request for a media item. The item is only
// deleted from the server when no other user has requested it.
func (s *Service) Remove(ctx context.Context, args map[string]string) (string, error) {
	client, err := s.clientFor(args["format"])
	if err != nil {
		return "", err
	}
	id, err := strconv.ParseInt(args["id"], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid id %q", args["id"])
	}
	userName := args[tools.UserNameArg]

	record, err := client.Get(ctx, id)
	if err != nil {
		return "", err
	}
	title, _ := recStr(record, "title")

	tagLabels := s.tagLabels(ctx, client)
	userTag := arr.UserTag(userName)

	var kept []int64
	otherRequesters := false
	for _, tid := range recTagIDs(record) {
		label := tagLabels[tid]
		if label == userTag {
			continue
		}
		kept = append(kept, tid)
		if strings.HasPrefix(label, arr.UserTagPrefix) {
			otherRequesters = true
		}
	}

	if otherRequesters {
		if kept == nil {
			kept = []int64{}
		}
		if err := client.Update(ctx, id, arr.Record{"tags": kept}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed %s from your requests, it remains on the server for other users", title), nil
	}

	if err := client.Delete(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s from the server", title), nil
}

// Wanted lists media requested by the calling user, or media nobody
// has requested, depending on the user argument.
func (s *Service) Wanted(ctx context.Context, args map[string]string) (string, error) {
	client, err := s.clientFor(args["format"])
	if err != nil {
		return "", err
	}
	who := args["user"]
	userName := args[tools.UserNameArg]

	records, err := client.All(ctx)
	if err != nil {
		return "", err
	}
	tagLabels := s.tagLabels(ctx, client)
	userTag := arr.UserTag(userName)

	var lines []string
	for _, r := range records {
		mine := false
		anyRequester := false
		for _, tid := range recTagIDs(r) {
			label := tagLabels[tid]
			if label == userTag {
				mine = true
			}
			if strings.HasPrefix(label, arr.UserTagPrefix) {
				anyRequester = true
			}
		}

		include := false
		switch who {
		case "self":
			include = mine
		case "none":
			include = !anyRequester
		default:
			return "", fmt.Errorf("unknown user selector %q, must be self or none", who)
		}
		if !include {
			continue
		}

		title, _ := recStr(r, "title")
		year, _ := recNum(r, "year")
		lines = append(lines, fmt.Sprintf("%s (%d)", title, int(year)))
	}

	if len(lines) == 0 {
		if who == "self" {
			return "You have not requested anything", nil
		}
		return "Everything on the server has been requested by someone", nil
	}
	return strings.Join(lines, "\n"), nil
}

// Downloads reports the active download queue with time remaining.
func (s *Service) Downloads(ctx context.Context, args map[string]string) (string, error) {
	var all []string
	for _, client := range []*arr.Client{s.radarr, s.sonarr} {
		if client == nil {
			continue
		}
		queue, err := client.Queue(ctx)
		if err != nil {
			return "", err
		}
		for _, item := range queue {
			title, _ := recStr(item, "title")
			status, _ := recStr(item, "status")
			line := fmt.Sprintf("%s %s", title, status)
			if left, ok := recStr(item, "timeleft"); ok {
				line += " time left " + left
			}
			all = append(all, line)
		}
	}
	if len(all) == 0 {
		return "Nothing is downloading", nil
	}
	return strings.Join(all, "\n"), nil
}

// tagLabels fetches the service's tag table as id -> label. Failures
// degrade to attribution-free rendering rather than failing the call.
func (s *Service) tagLabels(ctx context.Context, client *arr.Client) map[int64]string {
	tags, err := client.Tags(ctx)
	if err != nil {
		s.logger.Warn("listing tags failed", "service", client.Service(), "error", err)
		return nil
	}
	labels := make(map[int64]string, len(tags))
	for _, t := range tags {
		labels[t.ID] = t.Label
	}
	return labels
}
