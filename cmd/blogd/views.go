package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/oakmead/blogcore"
	"github.com/oakmead/blogcore/views"
)

// defaultViews builds a plain HTML rendition of every page the engine
// renders. Production sites replace these with their own templ templates;
// blogd keeps them hand-written so the binary works without codegen.
func defaultViews(cfg blogcore.SiteConfig) blogcore.ViewFuncs {
	esc := html.EscapeString

	page := func(title string, body func(w io.Writer)) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
			fmt.Fprintf(w, `<meta name="viewport" content="width=device-width, initial-scale=1">`)
			fmt.Fprintf(w, `<title>%s | %s</title>`, esc(title), esc(cfg.SiteName))
			fmt.Fprintf(w, `<link rel="stylesheet" href="/public/style.css"></head><body>`)
			fmt.Fprintf(w, `<header><a href="/"><h1>%s</h1></a></header><main>`, esc(cfg.SiteName))
			body(w)
			fmt.Fprintf(w, `</main><footer><p>%s</p></footer></body></html>`, esc(cfg.SiteName))
			return nil
		})
	}

	postCard := func(w io.Writer, p blogcore.Post) {
		fmt.Fprintf(w, `<article class="card">`)
		if len(p.Images) > 0 {
			fmt.Fprintf(w, `<img src="%s" alt="%s">`, esc(p.Images[0].Thumbnail), esc(captionOr(p, 0, p.Title)))
		}
		fmt.Fprintf(w, `<h2><a href="/posts/%s/">%s</a></h2>`, esc(p.Slug), esc(p.Title))
		fmt.Fprintf(w, `<time>%s</time>`, esc(views.FormatDate(p.CreatedAt)))
		excerpt := p.Excerpt
		if excerpt == "" {
			excerpt = views.Excerpt(p.Content, 180)
		}
		fmt.Fprintf(w, `<p>%s</p></article>`, esc(excerpt))
	}

	sidebar := func(w io.Writer, cats []blogcore.Category) {
		fmt.Fprintf(w, `<aside><form action="/search/" method="get"><input type="search" name="q" placeholder="Search"></form><ul>`)
		for _, c := range cats {
			fmt.Fprintf(w, `<li><a href="/category/%s/">%s</a></li>`, esc(c.Slug), esc(c.Name))
		}
		fmt.Fprintf(w, `</ul></aside>`)
	}

	pager := func(w io.Writer, pg views.Pagination, base string) {
		if pg.TotalPages <= 1 {
			return
		}
		fmt.Fprintf(w, `<nav class="pager">`)
		if pg.HasPrev {
			fmt.Fprintf(w, `<a href="%s?page=%d">&laquo; Prev</a>`, base, pg.PrevPage)
		}
		fmt.Fprintf(w, `<span>Page %d of %d</span>`, pg.Page, pg.TotalPages)
		if pg.HasNext {
			fmt.Fprintf(w, `<a href="%s?page=%d">Next &raquo;</a>`, base, pg.NextPage)
		}
		fmt.Fprintf(w, `</nav>`)
	}

	flashBlock := func(w io.Writer, f blogcore.Flashes) {
		for _, m := range f.Success {
			fmt.Fprintf(w, `<p class="flash success">%s</p>`, esc(m))
		}
		for _, m := range f.Error {
			fmt.Fprintf(w, `<p class="flash error">%s</p>`, esc(m))
		}
	}

	return blogcore.ViewFuncs{
		Home: func(posts []blogcore.Post, pg views.Pagination, cats []blogcore.Category) templ.Component {
			return page(cfg.SiteName, func(w io.Writer) {
				sidebar(w, cats)
				for _, p := range posts {
					postCard(w, p)
				}
				pager(w, pg, "/")
			})
		},

		Post: func(p blogcore.Post, cats []blogcore.Category) templ.Component {
			return page(p.Title, func(w io.Writer) {
				sidebar(w, cats)
				fmt.Fprintf(w, `<article><h1>%s</h1>`, esc(p.Title))
				fmt.Fprintf(w, `<p class="byline">%s`, esc(views.FormatDate(p.CreatedAt)))
				if p.Author != "" {
					fmt.Fprintf(w, ` by %s`, esc(p.Author))
				}
				fmt.Fprintf(w, `</p>`)
				for i, img := range p.Images {
					fmt.Fprintf(w, `<figure><a href="%s"><img src="%s" alt="%s"></a>`,
						esc(img.Large), esc(img.Medium), esc(captionOr(p, i, p.Title)))
					if caption := captionOr(p, i, ""); caption != "" {
						fmt.Fprintf(w, `<figcaption>%s</figcaption>`, esc(caption))
					}
					fmt.Fprintf(w, `</figure>`)
				}
				// Body HTML is sanitized at save time.
				fmt.Fprintf(w, `<div class="body">%s</div>`, p.Content)
				if len(p.Categories) > 0 {
					fmt.Fprintf(w, `<p class="tags">`)
					for _, c := range p.Categories {
						fmt.Fprintf(w, `<a href="/category/%s/">%s</a> `, esc(c.Slug), esc(c.Name))
					}
					fmt.Fprintf(w, `</p>`)
				}
				fmt.Fprintf(w, `</article>`)
				fmt.Fprintf(w, `<script type="application/ld+json">%s</script>`, blogcore.BlogPostingJsonLD(p, cfg))
			})
		},

		Category: func(cat blogcore.Category, posts []blogcore.Post, pg views.Pagination, cats []blogcore.Category) templ.Component {
			return page(cat.Name, func(w io.Writer) {
				sidebar(w, cats)
				fmt.Fprintf(w, `<h1>%s</h1>`, esc(cat.Name))
				for _, p := range posts {
					postCard(w, p)
				}
				pager(w, pg, "/category/"+cat.Slug+"/")
			})
		},

		Search: func(query string, posts []blogcore.Post, cats []blogcore.Category) templ.Component {
			return page("Search", func(w io.Writer) {
				sidebar(w, cats)
				fmt.Fprintf(w, `<h1>Search results for &ldquo;%s&rdquo;</h1>`, esc(query))
				if len(posts) == 0 {
					fmt.Fprintf(w, `<p>No posts found.</p>`)
				}
				for _, p := range posts {
					postCard(w, p)
				}
			})
		},

		AdminLogin: func(showError bool, csrf string) templ.Component {
			return page("Admin Login", func(w io.Writer) {
				if showError {
					fmt.Fprintf(w, `<p class="flash error">Invalid username or password</p>`)
				}
				fmt.Fprintf(w, `<form action="/admin/login/" method="post">`)
				fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s">`, esc(csrf))
				fmt.Fprintf(w, `<input name="username" placeholder="Username" required>`)
				fmt.Fprintf(w, `<input type="password" name="password" placeholder="Password" required>`)
				fmt.Fprintf(w, `<button type="submit">Log in</button></form>`)
			})
		},

		AdminDashboard: func(posts []blogcore.Post, cats []blogcore.Category, f blogcore.Flashes, csrf string) templ.Component {
			return page("Dashboard", func(w io.Writer) {
				flashBlock(w, f)
				fmt.Fprintf(w, `<nav><a href="/admin/posts/new/">New post</a> <a href="/admin/categories/">Categories</a> <a href="/admin/users/">Users</a></nav>`)
				fmt.Fprintf(w, `<table><tr><th>Title</th><th>Created</th><th></th></tr>`)
				for _, p := range posts {
					fmt.Fprintf(w, `<tr><td><a href="/admin/posts/%d/edit/">%s</a></td><td>%s</td>`,
						p.ID, esc(p.Title), esc(views.FormatDate(p.CreatedAt)))
					fmt.Fprintf(w, `<td><form action="/admin/posts/%d/delete/" method="post">`, p.ID)
					fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s"><button>Delete</button></form></td></tr>`, esc(csrf))
				}
				fmt.Fprintf(w, `</table>`)
				fmt.Fprintf(w, `<form action="/admin/logout/" method="post"><input type="hidden" name="_csrf" value="%s"><button>Log out</button></form>`, esc(csrf))
			})
		},

		AdminPostForm: func(p *blogcore.Post, cats []blogcore.Category, f blogcore.Flashes, csrf string) templ.Component {
			title := "New post"
			action := "/admin/posts/"
			if p != nil {
				title = "Edit post"
				action = fmt.Sprintf("/admin/posts/%d/", p.ID)
			}
			return page(title, func(w io.Writer) {
				flashBlock(w, f)
				fmt.Fprintf(w, `<form action="%s" method="post" enctype="multipart/form-data">`, action)
				fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s">`, esc(csrf))
				fmt.Fprintf(w, `<input name="title" placeholder="Title" value="%s" required>`, esc(fieldOf(p, func(p blogcore.Post) string { return p.Title })))
				fmt.Fprintf(w, `<input name="description" placeholder="Meta description" value="%s">`, esc(fieldOf(p, func(p blogcore.Post) string { return p.Description })))
				fmt.Fprintf(w, `<textarea name="excerpt" placeholder="Excerpt">%s</textarea>`, esc(fieldOf(p, func(p blogcore.Post) string { return p.Excerpt })))
				fmt.Fprintf(w, `<textarea name="content" required>%s</textarea>`, esc(fieldOf(p, func(p blogcore.Post) string { return p.Content })))
				if p != nil {
					fmt.Fprintf(w, `<input type="date" name="created_at" value="%s">`, esc(views.FormatDateInput(p.CreatedAt)))
				} else {
					fmt.Fprintf(w, `<input type="date" name="created_at">`)
				}
				fmt.Fprintf(w, `<fieldset>`)
				for _, c := range cats {
					checked := ""
					if p != nil && hasCategory(p.Categories, c.ID) {
						checked = " checked"
					}
					fmt.Fprintf(w, `<label><input type="checkbox" name="categories" value="%d"%s> %s</label>`, c.ID, checked, esc(c.Name))
				}
				fmt.Fprintf(w, `</fieldset>`)
				if p != nil {
					for i, img := range p.Images {
						fmt.Fprintf(w, `<div class="existing"><img src="%s">`, esc(img.Thumbnail))
						fmt.Fprintf(w, `<input type="hidden" name="existing_images" value="%s">`, esc(img.Large))
						fmt.Fprintf(w, `<input name="captions" value="%s" placeholder="Caption"></div>`, esc(captionOr(*p, i, "")))
					}
				}
				fmt.Fprintf(w, `<input type="file" name="images" accept="image/*" multiple>`)
				if p == nil {
					fmt.Fprintf(w, `<label><input type="checkbox" name="overwrite"> Overwrite existing post with the same title</label>`)
				}
				fmt.Fprintf(w, `<button type="submit">Save</button></form>`)
			})
		},

		AdminCategories: func(cats []blogcore.Category, f blogcore.Flashes, csrf string) templ.Component {
			return page("Categories", func(w io.Writer) {
				flashBlock(w, f)
				fmt.Fprintf(w, `<form action="/admin/categories/" method="post"><input type="hidden" name="_csrf" value="%s">`, esc(csrf))
				fmt.Fprintf(w, `<input name="name" placeholder="New category" required><button>Add</button></form><ul>`)
				for _, c := range cats {
					fmt.Fprintf(w, `<li>%s <form action="/admin/categories/%d/delete/" method="post">`, esc(c.Name), c.ID)
					fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s"><button>Delete</button></form></li>`, esc(csrf))
				}
				fmt.Fprintf(w, `</ul>`)
			})
		},

		AdminUsers: func(users []blogcore.User, f blogcore.Flashes, csrf string) templ.Component {
			return page("Users", func(w io.Writer) {
				flashBlock(w, f)
				fmt.Fprintf(w, `<form action="/admin/users/" method="post"><input type="hidden" name="_csrf" value="%s">`, esc(csrf))
				fmt.Fprintf(w, `<input name="username" placeholder="Username" required>`)
				fmt.Fprintf(w, `<input type="password" name="password" placeholder="Password" required>`)
				fmt.Fprintf(w, `<select name="role"><option value="user">User</option><option value="admin">Admin</option></select>`)
				fmt.Fprintf(w, `<button>Create</button></form><ul>`)
				for _, u := range users {
					fmt.Fprintf(w, `<li>%s (%s) <form action="/admin/users/%d/delete/" method="post">`, esc(u.Username), esc(u.Role), u.ID)
					fmt.Fprintf(w, `<input type="hidden" name="_csrf" value="%s"><button>Delete</button></form></li>`, esc(csrf))
				}
				fmt.Fprintf(w, `</ul>`)
			})
		},

		NotFound: func() templ.Component {
			return page("Not Found", func(w io.Writer) {
				fmt.Fprintf(w, `<h1>404</h1><p>That page does not exist. <a href="/">Back home</a>.</p>`)
			})
		},

		ServerError: func() templ.Component {
			return page("Server Error", func(w io.Writer) {
				fmt.Fprintf(w, `<h1>500</h1><p>Something went wrong. <a href="/">Back home</a>.</p>`)
			})
		},
	}
}

func fieldOf(p *blogcore.Post, get func(blogcore.Post) string) string {
	if p == nil {
		return ""
	}
	return get(*p)
}

func captionOr(p blogcore.Post, i int, fallback string) string {
	if i < len(p.Captions) && strings.TrimSpace(p.Captions[i]) != "" {
		return p.Captions[i]
	}
	return fallback
}

func hasCategory(cats []blogcore.Category, id int64) bool {
	for _, c := range cats {
		if c.ID == id {
			return true
		}
	}
	return false
}
