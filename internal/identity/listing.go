package identity

import (
	"context"
)

// UnidentifiedGroupName collects online players that have no occupancy
// record at all, e.g. those let in by the host before the engine saw them
const UnidentifiedGroupName = "unidentified"

// GroupOnlineByService resolves each online player's name back to the
// verification service that authenticated it and groups the names by the
// service's display name. Identities whose service disappeared from the
// configuration fall into the "unknown" group, never into an error
func (m *Manager) GroupOnlineByService(ctx context.Context, onlineUsernames []string) (map[string][]string, error) {
	result := make(map[string][]string)
	for _, username := range onlineUsernames {
		group, err := m.resolveGroup(ctx, username)
		if err != nil {
			return nil, err
		}

		result[group] = append(result[group], username)
	}

	return result, nil
}

func (m *Manager) resolveGroup(ctx context.Context, username string) (string, error) {
	occupancy, err := m.store.FindOccupancy(ctx, normalizeUsername(username))
	if err != nil {
		return "", err
	}

	if occupancy == nil {
		return UnidentifiedGroupName, nil
	}

	user, err := m.store.FindUserByLocalUuid(ctx, occupancy.LocalUuid)
	if err != nil {
		return "", err
	}

	if user == nil {
		return UnidentifiedGroupName, nil
	}

	return m.registry.NameById(user.ServiceId), nil
}
