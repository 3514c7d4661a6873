package model

type Author struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type Book struct {
	ID              int64  `db:"id"`
	Title           string `db:"title"`
	PublicationYear int    `db:"publication_year"`
	AuthorID        int64  `db:"author_id"`
	AuthorName      string `db:"author_name"`
}

type Librarian struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	LibraryID int64  `db:"library_id"`
}

type Library struct {
	ID        int64      `db:"id"`
	Name      string     `db:"name"`
	Books     []Book     `db:"-"`
	Librarian *Librarian `db:"-"`
}

// BookForm is the add/edit book form. The author is matched by name and
// created when missing.
type BookForm struct {
	Title           string `form:"title" validate:"required,max=200"`
	Author          string `form:"author" validate:"required,max=100"`
	PublicationYear int    `form:"publication_year" validate:"required,gte=1,notfuture"`
}

func (b Book) Form() BookForm {
	return BookForm{
		Title:           b.Title,
		Author:          b.AuthorName,
		PublicationYear: b.PublicationYear,
	}
}

type SearchForm struct {
	Query string `query:"query" form:"query" validate:"required,max=255"`
}

type RegisterForm struct {
	Username  string `form:"username" validate:"required,max=150"`
	Email     string `form:"email" validate:"omitempty,email"`
	Password1 string `form:"password1" validate:"required,min=8"`
	Password2 string `form:"password2" validate:"required,eqfield=Password1"`
}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}
