package media

import "github.com/cinematic-bot/cinematic/internal/tools"

// Tools returns the media function definitions in the order they are
// advertised to the model.
func (s *Service) Tools() []tools.Tool {
	formatParam := tools.Param{
		Name:        "format",
		Description: "The format of the media to be searched for",
		Required:    true,
		Enum:        []string{"movie", "series"},
	}
	qualityParam := tools.Param{
		Name:        "quality",
		Description: "The quality to set the media to, default to 1080p if not specified",
		Required:    true,
		Enum:        []string{"SD", "720p", "1080p", "2160p", "720p/1080p", "Any"},
	}
	idParam := tools.Param{
		Name:        "id",
		Description: "The id of the media item",
		Required:    true,
	}

	return []tools.Tool{
		{
			Name:        "media_lookup",
			Description: "Search the media server for query information about a piece of media",
			Params: []tools.Param{
				formatParam,
				{
					Name:        "searches",
					Description: `List of movies/series to search for separated by pipe |, for example "Game of Thrones|Watchmen|Cats"`,
					Required:    true,
				},
				{
					Name:        "query",
					Description: `A query for information to be answered, query should be phrased as a question, for example "Available on the server?" "Is series Watchmen available on the server in the Ultimate Cut?" "What is Cats movie tmdbId/tvdbId?" "Who added series Game of Thrones to the server?" "What is series Game of Thrones tmdbId/tvdbId?", if multiple results are returned, ask user for clarification`,
					Required:    true,
				},
			},
			Handler: s.Lookup,
		},
		{
			Name:        "media_add",
			Description: "Adds media to the server, perform a lookup first to get the tmdbId/tvdbId",
			Params: []tools.Param{
				formatParam,
				{
					Name:        "db_id",
					Description: "The tmdbId/tvdbId of the media item",
					Required:    true,
				},
				qualityParam,
			},
			Handler: s.Add,
		},
		{
			Name:        "media_setres",
			Description: "Change the targeted resolution of a piece of media on the server, perform a lookup first to get the id",
			Params:      []tools.Param{formatParam, idParam, qualityParam},
			Handler:     s.SetRes,
		},
		{
			Name:        "media_remove",
			Description: "Removes media from users requests, media items remain on the server if another user has requested also, perform a lookup first to get the id",
			Params:      []tools.Param{formatParam, idParam},
			Handler:     s.Remove,
		},
		{
			Name:        "media_wanted",
			Description: "Returns a list of media that user or noone has requested, aim for the most condensed list while retaining clarity knowing that the user can always request more specific detail",
			Params: []tools.Param{
				formatParam,
				{
					Name:        "user",
					Description: "Self for the user that spoke, none to get a list of movies or series that noone has requested",
					Required:    true,
					Enum:        []string{"self", "none"},
				},
			},
			Handler: s.Wanted,
		},
		{
			Name:        "media_downloads",
			Description: "Returns a list of series or movies that are downloading and their status, if user asks how long until a series is on etc",
			Handler:     s.Downloads,
		},
	}
}
