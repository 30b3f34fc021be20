package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/facetapp/facet/internal/query"
	"github.com/facetapp/facet/internal/store"
	"github.com/facetapp/facet/internal/types"
)

var createFlags struct {
	tag      string
	priority string
	content  string
}

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new issue",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		var attach *types.Tag
		if createFlags.tag != "" {
			tag, ok := tagByName(s, createFlags.tag)
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: no tag named %q\n", createFlags.tag)
				os.Exit(1)
			}
			attach = tag
		}

		issue := s.NewIssue(attach)
		if len(args) > 0 {
			issue.Title = args[0]
		}
		issue.Content = createFlags.content
		if createFlags.priority != "" {
			p, err := parsePriority(createFlags.priority)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			issue.Priority = p
		}
		if err := s.UpdateIssue(issue); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Save()

		fmt.Printf("Created %s: %s\n", shortID(issue.ID), issue.Title)
	},
}

var listFlags struct {
	search      string
	tag         string
	priority    string
	status      string
	sortField   string
	oldestFirst bool
	recent      bool
	rank        bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Long: `List issues matching a filter and search.

The search text supports tag tokens: words starting with # match issues
carrying that tag, e.g. 'facet list --search "#bug crash"'.`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		filter := types.AllFilter()
		if listFlags.recent {
			filter = types.RecentFilter()
		}
		if listFlags.tag != "" {
			tag, ok := tagByName(s, listFlags.tag)
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: no tag named %q\n", listFlags.tag)
				os.Exit(1)
			}
			filter = types.FilterForTag(tag)
		}

		engine := query.New(s)

		search := types.NewSearchState()
		text, tokens, err := engine.ParseText(listFlags.search)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		search.Text = text
		search.Tokens = tokens
		search.NewestFirst = !listFlags.oldestFirst
		search.RankByMatch = listFlags.rank
		switch listFlags.sortField {
		case "", "created":
			search.SortField = types.SortCreated
		case "modified":
			search.SortField = types.SortModified
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown sort field %q (created, modified)\n", listFlags.sortField)
			os.Exit(1)
		}
		if listFlags.priority != "" {
			p, err := parsePriority(listFlags.priority)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			search.FilterEnabled = true
			search.Priority = int(p)
		}
		if listFlags.status != "" {
			switch listFlags.status {
			case "all":
				search.Status = types.StatusAll
			case "open":
				search.Status = types.StatusOpen
			case "closed":
				search.Status = types.StatusClosed
			default:
				fmt.Fprintf(os.Stderr, "Error: unknown status %q (all, open, closed)\n", listFlags.status)
				os.Exit(1)
			}
			search.FilterEnabled = true
		}

		issues := engine.IssuesForFilter(filter, search)
		if len(issues) == 0 {
			fmt.Println("No issues found")
			return
		}
		for _, issue := range issues {
			printIssue(s, issue)
		}
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		issue, err := issueByPrefix(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		issue.Completed = true
		if err := s.UpdateIssue(issue); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Save()

		fmt.Printf("Closed %s: %s\n", shortID(issue.ID), issue.Title)
	},
}

var remindCmd = &cobra.Command{
	Use:   "remind <id> <when...>",
	Short: "Set a reminder on an issue",
	Long: `Set a reminder using natural language, e.g.

  facet remind 1a2b3c4d tomorrow at 9am
  facet remind 1a2b3c4d in 2 hours
  facet remind 1a2b3c4d off`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		issue, err := issueByPrefix(s, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		text := strings.Join(args[1:], " ")
		if text == "off" {
			issue.ReminderEnabled = false
			issue.Reminder = nil
		} else {
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)
			result, err := w.Parse(text, time.Now())
			if err != nil || result == nil {
				fmt.Fprintf(os.Stderr, "Error: could not understand %q\n", text)
				os.Exit(1)
			}
			t := result.Time
			issue.ReminderEnabled = true
			issue.Reminder = &t
		}

		if err := s.UpdateIssue(issue); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Save()

		if issue.ReminderEnabled {
			fmt.Printf("Reminder for %s set to %s\n", shortID(issue.ID), issue.Reminder.Format(time.RFC1123))
		} else {
			fmt.Printf("Reminder for %s cleared\n", shortID(issue.ID))
		}
	},
}

func parsePriority(s string) (types.Priority, error) {
	switch strings.ToLower(s) {
	case "low", "0":
		return types.PriorityLow, nil
	case "medium", "1":
		return types.PriorityMedium, nil
	case "high", "2":
		return types.PriorityHigh, nil
	}
	return 0, fmt.Errorf("unknown priority %q (low, medium, high)", s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// issueByPrefix resolves a (possibly shortened) issue id.
func issueByPrefix(s *store.Store, prefix string) (*types.Issue, error) {
	var found *types.Issue
	for _, issue := range s.Issues() {
		if !strings.HasPrefix(issue.ID, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("id %q is ambiguous", prefix)
		}
		found = issue
	}
	if found == nil {
		return nil, fmt.Errorf("no issue with id %q", prefix)
	}
	return found, nil
}

func tagByName(s *store.Store, name string) (*types.Tag, bool) {
	for _, tag := range s.Tags() {
		if strings.EqualFold(tag.Name, name) {
			return tag, true
		}
	}
	return nil, false
}

func printIssue(s *store.Store, issue *types.Issue) {
	status := " "
	if issue.Completed {
		status = "x"
	}
	var tagNames []string
	for _, tag := range s.TagsFor(issue.ID) {
		tagNames = append(tagNames, "#"+tag.Name)
	}
	line := fmt.Sprintf("[%s] %s  %-8s %s", status, shortID(issue.ID), issue.Priority, issue.Title)
	if len(tagNames) > 0 {
		line += "  " + strings.Join(tagNames, " ")
	}
	if issue.ReminderEnabled && issue.Reminder != nil {
		line += fmt.Sprintf("  (remind %s)", issue.Reminder.Format("2006-01-02 15:04"))
	}
	fmt.Println(line)
}

func init() {
	createCmd.Flags().StringVar(&createFlags.tag, "tag", "", "attach an existing tag by name")
	createCmd.Flags().StringVarP(&createFlags.priority, "priority", "p", "", "priority (low, medium, high)")
	createCmd.Flags().StringVar(&createFlags.content, "content", "", "issue description")

	listCmd.Flags().StringVarP(&listFlags.search, "search", "s", "", "search text (# prefixes match tags)")
	listCmd.Flags().StringVar(&listFlags.tag, "tag", "", "limit to issues carrying a tag")
	listCmd.Flags().StringVarP(&listFlags.priority, "priority", "p", "", "limit to a priority (low, medium, high)")
	listCmd.Flags().StringVar(&listFlags.status, "status", "", "limit by status (all, open, closed)")
	listCmd.Flags().StringVar(&listFlags.sortField, "sort", "created", "sort field (created, modified)")
	listCmd.Flags().BoolVar(&listFlags.oldestFirst, "oldest-first", false, "sort ascending instead of newest first")
	listCmd.Flags().BoolVar(&listFlags.recent, "recent", false, "only issues modified in the last week")
	listCmd.Flags().BoolVar(&listFlags.rank, "rank", false, "rank results by match position in the title")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(remindCmd)
}
