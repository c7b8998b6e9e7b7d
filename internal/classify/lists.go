package classify

// workDomains are productivity, communication and developer tools.
var workDomains = []string{
	// Google Workspace
	"gmail.com",
	"docs.google.com",
	"drive.google.com",
	"calendar.google.com",
	"meet.google.com",

	// Code hosting & docs
	"github.com",
	"gitlab.com",
	"bitbucket.org",
	"stackoverflow.com",
	"stackexchange.com",
	"developer.mozilla.org",
	"pkg.go.dev",
	"go.dev",
	"npmjs.com",
	"readthedocs.io",

	// Project management
	"atlassian.net",
	"jira.com",
	"trello.com",
	"asana.com",
	"linear.app",
	"notion.so",
	"clickup.com",
	"monday.com",

	// Communication
	"slack.com",
	"zoom.us",
	"teams.microsoft.com",
	"outlook.com",
	"office.com",

	// Design & cloud
	"figma.com",
	"miro.com",
	"vercel.com",
	"netlify.com",
	"aws.amazon.com",
	"console.cloud.google.com",
	"portal.azure.com",
}

// socialDomains are social networks, media and entertainment.
var socialDomains = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"threads.net",
	"tiktok.com",
	"snapchat.com",
	"reddit.com",
	"pinterest.com",
	"tumblr.com",
	"linkedin.com",
	"discord.com",
	"youtube.com",
	"netflix.com",
	"twitch.tv",
	"hulu.com",
	"disneyplus.com",
	"primevideo.com",
	"spotify.com",
	"9gag.com",
}

// synonyms fold host aliases into the list entry they belong to.
var synonyms = map[string]string{
	"mail.google.com":    "gmail.com",
	"inbox.google.com":   "gmail.com",
	"sheets.google.com":  "docs.google.com",
	"slides.google.com":  "docs.google.com",
	"forms.google.com":   "docs.google.com",
	"m.youtube.com":      "youtube.com",
	"youtu.be":           "youtube.com",
	"m.facebook.com":     "facebook.com",
	"fb.com":             "facebook.com",
	"old.reddit.com":     "reddit.com",
	"redd.it":            "reddit.com",
	"t.co":               "twitter.com",
	"mobile.twitter.com": "twitter.com",
	"outlook.live.com":   "outlook.com",
}

var workKeywords = []string{"docs", "api", "documentation"}

var socialKeywords = []string{"watch", "video", "stream"}
