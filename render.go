package mailscheduler

import (
	"regexp"
	"strings"
)

// SubstituteVariables replaces every occurrence of {{key}} in content with
// the matching value. Keys are supplied without braces, a key already
// wrapped in braces is used verbatim. Placeholders without a matching key
// are left untouched, templates may intentionally omit optional variables.
func SubstituteVariables(content string, variables map[string]string) string {
	result := content

	for key, value := range variables {
		placeholder := key
		if !strings.HasPrefix(key, "{{") {
			placeholder = "{{" + key + "}}"
		}

		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHtml(s string) string {
	return htmlEscaper.Replace(s)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ToPlainText strips tags and collapses whitespace, used as the non HTML
// fallback body.
func ToPlainText(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// ToEmailHTML escapes subject and body, converts body newlines to line
// breaks and wraps both in the fixed single column email layout.
func ToEmailHTML(subject, body string) string {
	escapedSubject := escapeHtml(subject)
	escapedBody := strings.ReplaceAll(escapeHtml(body), "\n", "<br>")

	return strings.NewReplacer(
		"{{subject}}", escapedSubject,
		"{{body}}", escapedBody,
	).Replace(emailLayout)
}

const emailLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <meta http-equiv="X-UA-Compatible" content="IE=edge">
  <title>{{subject}}</title>
  <style>
    * { box-sizing: border-box; }
    body { margin: 0; padding: 0; -webkit-text-size-adjust: 100%; -ms-text-size-adjust: 100%; }
    table { border-collapse: collapse; }
    img { border: 0; height: auto; line-height: 100%; outline: none; text-decoration: none; }
    .wrapper { width: 100%; background-color: #f1f5f9; padding: 32px 16px; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,0.08); }
    .header-bar { height: 4px; background-color: #2563eb; }
    .header { padding: 24px 28px 20px; background-color: #ffffff; border-bottom: 1px solid #e2e8f0; }
    .header-title { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; font-size: 20px; font-weight: 600; color: #0f172a; margin: 0; letter-spacing: -0.02em; line-height: 1.3; }
    .content { padding: 28px; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; font-size: 15px; line-height: 1.65; color: #334155; }
    .content p { margin: 0 0 1em; }
    .content p:last-child { margin-bottom: 0; }
    .content a { color: #2563eb; text-decoration: none; }
    .content a:hover { text-decoration: underline; }
    .footer { padding: 20px 28px; background-color: #f8fafc; border-top: 1px solid #e2e8f0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; font-size: 12px; color: #64748b; line-height: 1.5; text-align: center; }
  </style>
</head>
<body style="margin:0;padding:0;background-color:#f1f5f9;-webkit-text-size-adjust:100%;">
  <div class="wrapper" style="width:100%;background-color:#f1f5f9;padding:32px 16px;">
    <div class="container" style="max-width:600px;margin:0 auto;background-color:#ffffff;border-radius:8px;overflow:hidden;box-shadow:0 1px 3px rgba(0,0,0,0.08);">
      <div class="header-bar" style="height:4px;background-color:#2563eb;"></div>
      <div class="header" style="padding:24px 28px 20px;background-color:#ffffff;border-bottom:1px solid #e2e8f0;">
        <h1 class="header-title" style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;font-size:20px;font-weight:600;color:#0f172a;margin:0;letter-spacing:-0.02em;line-height:1.3;">{{subject}}</h1>
      </div>
      <div class="content" style="padding:28px;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;font-size:15px;line-height:1.65;color:#334155;">
        {{body}}
      </div>
      <div class="footer" style="padding:20px 28px;background-color:#f8fafc;border-top:1px solid #e2e8f0;font-size:12px;color:#64748b;line-height:1.5;text-align:center;">
        This is an automated message from your organization. Please do not reply directly to this email.
      </div>
    </div>
  </div>
</body>
</html>`
