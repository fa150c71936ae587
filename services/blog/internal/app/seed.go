package app

import (
	"context"
	"time"

	"inkpost/internal/util"
	"inkpost/pkg/domain"
)

type seedPost struct {
	title     string
	content   string
	published bool
	author    int
}

var seedUsers = []struct {
	email string
	name  string
}{
	{"john@example.com", "John Doe"},
	{"jane@example.com", "Jane Smith"},
}

var seedPosts = []seedPost{
	{
		title: "Getting Started with Next.js 15",
		content: "Next.js 15 brings a faster App Router, React Server Components and tighter TypeScript integration.\n\n" +
			"This post walks through the features worth adopting first and how they fit a small blog.",
		published: true,
		author:    0,
	},
	{
		title: "Understanding Prisma ORM",
		content: "Prisma generates a type-safe query client from a schema file and keeps migrations next to it.\n\n" +
			"We look at the schema language, the generated client and the migration workflow.",
		published: true,
		author:    1,
	},
	{
		title: "Building Modern UIs with shadcn/ui",
		content: "shadcn/ui is a set of accessible components built on Tailwind CSS and Radix UI that you copy into your project.\n\n" +
			"Owning the component source means every part can be restyled without fighting a library.",
		published: true,
		author:    0,
	},
	{
		title: "Draft Post - Work in Progress",
		content: "This draft stays hidden until it is published.\n\n" +
			"Planned topics: real-time updates, authentication strategies, performance and testing.",
		published: false,
		author:    1,
	},
	{
		title: "The Future of Web Development",
		content: "Edge runtimes, WebAssembly and AI-assisted tooling are changing how web applications are built and shipped.\n\n" +
			"The fundamentals stay the same: clean code, sound architecture and a focus on users.",
		published: true,
		author:    0,
	},
}

// SeedResult reports what Seed wrote.
type SeedResult struct {
	Users        []domain.User
	PostsDeleted int64
	PostsCreated int
}

// Seed upserts the sample users, replaces their posts with the sample set
// and can be run repeatedly. Posts are spaced one second apart so listing
// order matches the order above, newest last.
func (a *App) Seed(ctx context.Context) (SeedResult, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	var res SeedResult
	now := a.timestamp()
	for _, u := range seedUsers {
		name := u.name
		user, err := a.store.UpsertUserByEmail(ctx, domain.User{
			ID:        util.NewID(),
			Email:     u.email,
			Name:      &name,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return res, storeErr("seed user "+u.email, err)
		}
		res.Users = append(res.Users, user)
	}

	ids := make([]string, 0, len(res.Users))
	for _, u := range res.Users {
		ids = append(ids, u.ID)
	}
	deleted, err := a.store.DeletePostsByAuthors(ctx, ids...)
	if err != nil {
		return res, storeErr("clear seed posts", err)
	}
	res.PostsDeleted = deleted

	base := now.Add(-time.Duration(len(seedPosts)) * time.Second)
	for i, p := range seedPosts {
		at := base.Add(time.Duration(i) * time.Second)
		if _, err := a.store.CreatePost(ctx, domain.Post{
			ID:        util.NewID(),
			Title:     p.title,
			Content:   p.content,
			Published: p.published,
			AuthorID:  res.Users[p.author].ID,
			CreatedAt: at,
			UpdatedAt: at,
		}); err != nil {
			return res, storeErr("seed post", err)
		}
		res.PostsCreated++
	}
	return res, nil
}
