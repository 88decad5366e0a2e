package db

import (
	"context"
)

func (store *SQLStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const query = `
		SELECT id, email, full_name, role, timezone, quiet_hours_start, quiet_hours_end, created_at, updated_at
		FROM users
		WHERE id = $1`

	var u User
	err := store.connPool.QueryRow(ctx, query, id).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Timezone, &u.QuietHoursStart, &u.QuietHoursEnd, &u.CreatedAt, &u.UpdatedAt)

	return u, err
}

// ListFamilyMembers returns the user records of everyone in a family,
// used by the family-scoped dispatch variant to resolve recipients.
func (store *SQLStore) ListFamilyMembers(ctx context.Context, familyID int64) ([]User, error) {
	const query = `
		SELECT u.id, u.email, u.full_name, u.role, u.timezone, u.quiet_hours_start, u.quiet_hours_end, u.created_at, u.updated_at
		FROM users u
		JOIN family_members fm ON fm.user_id = u.id
		WHERE fm.family_id = $1
		ORDER BY u.full_name`

	rows, err := store.connPool.Query(ctx, query, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err = rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Timezone, &u.QuietHoursStart, &u.QuietHoursEnd, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
