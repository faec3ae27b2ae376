package service

import "lexcounsel-backend/llm"

func toolDeclarations(confirmationRequired bool) []llm.ToolDeclaration {
	tokenParam := llm.Parameter{
		Name:        "confirmationToken",
		Type:        llm.ParamString,
		Description: "Token returned by propose_topic_knowledge after the user confirmed the proposal.",
		Required:    confirmationRequired,
	}

	decls := []llm.ToolDeclaration{
		{
			Name:        string(ToolSearchStatutes),
			Description: "Search the official register of Polish legal acts. Returns up to 5 candidate statutes.",
			Parameters: []llm.Parameter{
				{Name: "keyword", Type: llm.ParamString, Description: "Words from the act title.", Required: true},
				{Name: "year", Type: llm.ParamInteger, Description: "Publication year."},
				{Name: "inForce", Type: llm.ParamBoolean, Description: "Only acts currently in force."},
			},
		},
		{
			Name:        string(ToolGetStatuteContent),
			Description: "Fetch the text of a statute identified by publisher, year and position.",
			Parameters: []llm.Parameter{
				{Name: "publisher", Type: llm.ParamString, Description: "Publisher code, e.g. DU or MP.", Required: true},
				{Name: "year", Type: llm.ParamInteger, Required: true},
				{Name: "pos", Type: llm.ParamInteger, Description: "Position in the journal.", Required: true},
				{Name: "title", Type: llm.ParamString, Description: "Act title from search_statutes, if known."},
			},
		},
		{
			Name:        string(ToolAddStatute),
			Description: "Add a statute to the topic knowledge. Only after the user explicitly approved it.",
			Parameters: []llm.Parameter{
				{Name: "publisher", Type: llm.ParamString, Required: true},
				{Name: "year", Type: llm.ParamInteger, Required: true},
				{Name: "pos", Type: llm.ParamInteger, Required: true},
				{Name: "title", Type: llm.ParamString, Required: true},
				{Name: "citedArticles", Type: llm.ParamArray, Description: "Articles relevant to the matter, e.g. Art. 415."},
				tokenParam,
			},
		},
		{
			Name:        string(ToolSearchCaseLaw),
			Description: "Search Polish court rulings. Returns up to 5 judgments with summaries.",
			Parameters: []llm.Parameter{
				{Name: "query", Type: llm.ParamString, Required: true},
				{
					Name:        "courtType",
					Type:        llm.ParamString,
					Description: "Restrict to one court type.",
					Enum:        []string{"COMMON", "SUPREME", "ADMINISTRATIVE", "CONSTITUTIONAL_TRIBUNAL", "NATIONAL_APPEAL_CHAMBER"},
				},
			},
		},
		{
			Name:        string(ToolAddRuling),
			Description: "Add a court ruling to the topic knowledge. Only after the user explicitly approved it.",
			Parameters: []llm.Parameter{
				{Name: "judgmentId", Type: llm.ParamString, Required: true},
				{Name: "caseNumber", Type: llm.ParamString, Required: true},
				{Name: "title", Type: llm.ParamString},
				{Name: "content", Type: llm.ParamString, Description: "Full ruling text, if already retrieved."},
				tokenParam,
			},
		},
		{
			Name:        string(ToolSearchSemanticLibrary),
			Description: "Semantic search over indexed legal texts and the user's documents.",
			Parameters: []llm.Parameter{
				{Name: "query", Type: llm.ParamString, Required: true},
			},
		},
	}

	if confirmationRequired {
		decls = append(decls, llm.ToolDeclaration{
			Name:        string(ToolProposeKnowledge),
			Description: "Propose a statute or ruling for the topic knowledge. Returns a confirmationToken the user must confirm.",
			Parameters: []llm.Parameter{
				{Name: "source", Type: llm.ParamString, Required: true, Enum: []string{"statute", "ruling"}},
				{Name: "title", Type: llm.ParamString, Required: true},
				{Name: "publisher", Type: llm.ParamString},
				{Name: "year", Type: llm.ParamInteger},
				{Name: "pos", Type: llm.ParamInteger},
				{Name: "judgmentId", Type: llm.ParamString},
			},
		})
	}
	return decls
}
